package game

import (
	"strings"

	"golang.org/x/mod/semver"
)

const (
	ContractName    = "crates.io:fomo"
	ContractVersion = "0.3.0"
)

// ContractInfo is the persisted version marker.
type ContractInfo struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Migrate re-stamps the version marker. Play must be paused and the target
// version must be strictly newer than the stored one.
func Migrate(s *State, call Call, info ContractInfo, target string) (ContractInfo, *Response, error) {
	if !s.IsPaused() {
		return info, nil, ErrUnauthorized
	}
	if call.Sender != s.Owner {
		return info, nil, ErrUnauthorized
	}
	if info.Contract != ContractName {
		return info, nil, ErrInvalidInput
	}
	next := canonical(target)
	if !semver.IsValid(next) {
		return info, nil, ErrInvalidInput
	}
	if prev := canonical(info.Version); semver.IsValid(prev) && semver.Compare(next, prev) <= 0 {
		return info, nil, ErrInvalidInput
	}

	migrated := ContractInfo{Contract: info.Contract, Version: strings.TrimPrefix(next, "v")}
	resp := newResponse(ActionMigrate).
		add("from_version", info.Version).
		add("to_version", migrated.Version)
	return migrated, resp, nil
}
