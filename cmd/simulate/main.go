package main

import (
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/drewstaylor/fomo/internal/game"
	"github.com/drewstaylor/fomo/internal/sim"
)

// --- Config ---
const (
	totalGames     = 500
	playersPerGame = 40
	gameDuration   = 2 * 86400
	denom          = "aarch"
)

// archetype distribution
const (
	pctSteady    = 0.40
	pctSniper    = 0.20
	pctCasual    = 0.30
	pctForgetful = 0.10
)

type Archetype int

const (
	Steady Archetype = iota
	Sniper
	Casual
	Forgetful
	Keeper
)

func (a Archetype) String() string {
	return [...]string{"Steady", "Sniper", "Casual", "Forgetful", "Keeper"}[a]
}

var params = game.InstantiateParams{
	Expiration:  3600,
	MinDeposit:  uint256.NewInt(1_000_000_000_000_000_000), // 1 ARCH in aarch
	Extensions:  60,
	Stale:       1800,
	ResetLength: 3600,
}

type gameResult struct {
	claims     int
	unlocks    int
	deposits   int
	rejected   int
	rounds     uint64
	carried    float64
	prizes     []float64
	winsByArch map[Archetype]int
	violations []string
}

func main() {
	start := time.Now()

	workers := runtime.GOMAXPROCS(0)
	results := make([]gameResult, totalGames)

	var progress atomic.Int64
	var wg sync.WaitGroup

	jobs := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				rng := rand.New(rand.NewSource(int64(i)*7919 + 42))
				results[i] = runGame(rng, i)
				if n := progress.Add(1); n%(totalGames/10) == 0 {
					fmt.Printf("  ... %d/%d games (%.0f%%)\n", n, totalGames, float64(n)/float64(totalGames)*100)
				}
			}
		}()
	}
	for i := 0; i < totalGames; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	printReport(results, time.Since(start), workers)
}

func runGame(rng *rand.Rand, id int) gameResult {
	archOf := make(map[string]Archetype, playersPerGame+1)
	cfg := sim.Config{
		Owner:      "owner",
		Denom:      denom,
		Params:     params,
		Seed:       0,
		Deposits:   make(map[uint64][]string),
		Claims:     make(map[uint64][]string),
		Unlocks:    make(map[uint64][]string),
		Duration:   gameDuration,
		SilentMode: true,
	}

	for i := 0; i < playersPerGame; i++ {
		addr := fmt.Sprintf("g%d-p%d", id, i)
		arch := pickArchetype(float64(i) / playersPerGame)
		archOf[addr] = arch
		genDeposits(rng, addr, arch, cfg.Deposits)
		if arch != Forgetful {
			genClaims(rng, addr, cfg.Claims)
		}
	}

	keeper := fmt.Sprintf("g%d-keeper", id)
	archOf[keeper] = Keeper
	for t := uint64(600); t <= gameDuration; t += 600 {
		cfg.Unlocks[t] = append(cfg.Unlocks[t], keeper)
	}

	res := sim.Run(cfg)

	out := gameResult{
		claims:     res.Claims,
		unlocks:    res.Unlocks,
		deposits:   res.Deposits,
		rejected:   res.Rejected,
		carried:    res.Pool.Float64(),
		winsByArch: make(map[Archetype]int),
		violations: res.Violations,
	}
	if res.Final != nil {
		out.rounds = res.Final.Round
	}
	for _, addr := range res.Winners() {
		out.prizes = append(out.prizes, res.Payouts[addr].Float64())
		out.winsByArch[archOf[addr]]++
	}
	return out
}

func pickArchetype(r float64) Archetype {
	switch {
	case r < pctSteady:
		return Steady
	case r < pctSteady+pctSniper:
		return Sniper
	case r < pctSteady+pctSniper+pctCasual:
		return Casual
	default:
		return Forgetful
	}
}

func genDeposits(rng *rand.Rand, addr string, arch Archetype, schedule map[uint64][]string) {
	switch arch {
	case Steady, Forgetful:
		interval := uint64(600 + rng.Intn(1800))
		for t := uint64(rng.Intn(600)) + 1; t <= gameDuration; t += interval {
			schedule[t] = append(schedule[t], addr)
		}

	case Sniper:
		// short bursts late in a round, three a day
		for day := uint64(0); day < gameDuration/86400; day++ {
			for burst := 0; burst < 3; burst++ {
				base := day*86400 + uint64(rng.Intn(86400))
				for k := uint64(0); k < 5; k++ {
					if t := base + k*50; t <= gameDuration {
						schedule[t] = append(schedule[t], addr)
					}
				}
			}
		}

	case Casual:
		for t := uint64(1); t <= gameDuration; t += uint64(1800 + rng.Intn(7200)) {
			if rng.Float64() < 0.3 {
				continue
			}
			schedule[t] = append(schedule[t], addr)
		}
	}
}

// genClaims has a player check back now and then; a claim only succeeds for
// the last depositor of an expired round.
func genClaims(rng *rand.Rand, addr string, schedule map[uint64][]string) {
	interval := uint64(300 + rng.Intn(900))
	for t := uint64(rng.Intn(300)) + 1; t <= gameDuration; t += interval {
		schedule[t] = append(schedule[t], addr)
	}
}

func printReport(results []gameResult, elapsed time.Duration, workers int) {
	var prizes, carried, roundsPerGame []float64
	var totalClaims, totalUnlocks, totalDeposits, totalRejected, totalViolations int
	winsByArch := make(map[Archetype]int)

	for _, r := range results {
		prizes = append(prizes, r.prizes...)
		carried = append(carried, r.carried)
		roundsPerGame = append(roundsPerGame, float64(r.rounds))
		totalClaims += r.claims
		totalUnlocks += r.unlocks
		totalDeposits += r.deposits
		totalRejected += r.rejected
		totalViolations += len(r.violations)
		for a, n := range r.winsByArch {
			winsByArch[a] += n
		}
	}
	sort.Float64s(prizes)
	sort.Float64s(carried)
	sort.Float64s(roundsPerGame)

	unit := params.MinDeposit.Float64()

	fmt.Println()
	fmt.Println("─── FOMO SIMULATION REPORT ────────────────────────────────────")
	fmt.Printf("  Games: %d  |  Players/game: %d  |  Duration: %dh\n", totalGames, playersPerGame, gameDuration/3600)
	fmt.Printf("  Archetypes: Steady(%.0f%%) Sniper(%.0f%%) Casual(%.0f%%) Forgetful(%.0f%%)\n",
		pctSteady*100, pctSniper*100, pctCasual*100, pctForgetful*100)
	fmt.Printf("  Round: %ds  |  Extension: %ds  |  Stale: %ds  |  Reset: %ds\n",
		params.Expiration, params.Extensions, params.Stale, params.ResetLength)
	fmt.Printf("  Elapsed: %v  |  Workers: %d\n", elapsed.Round(time.Millisecond), workers)

	fmt.Println()
	fmt.Println("─── ACTIVITY ──────────────────────────────────────────────────")
	fmt.Printf("  Deposits accepted:       %10d\n", totalDeposits)
	fmt.Printf("  Claims:                  %10d\n", totalClaims)
	fmt.Printf("  Stale unlocks:           %10d\n", totalUnlocks)
	fmt.Printf("  Rejected calls:          %10d\n", totalRejected)
	fmt.Printf("  Mean rounds/game:        %10.1f\n", mean(roundsPerGame))
	fmt.Printf("  Median rounds/game:      %10.1f\n", percentile(roundsPerGame, 50))

	fmt.Println()
	fmt.Println("─── WINNINGS (in minimum deposits) ────────────────────────────")
	if len(prizes) > 0 {
		fmt.Printf("  Mean winnings/winner:    %10.1f\n", mean(prizes)/unit)
		fmt.Printf("  Median winnings:         %10.1f\n", percentile(prizes, 50)/unit)
		fmt.Printf("  90th pctl winnings:      %10.1f\n", percentile(prizes, 90)/unit)
		fmt.Printf("  Max winnings:            %10.1f\n", prizes[len(prizes)-1]/unit)
	}
	fmt.Printf("  Mean pool left unclaimed:%10.1f\n", mean(carried)/unit)

	fmt.Println()
	fmt.Println("─── WINNERS BY ARCHETYPE ──────────────────────────────────────")
	totalWinners := 0
	for _, n := range winsByArch {
		totalWinners += n
	}
	for _, a := range []Archetype{Steady, Sniper, Casual, Forgetful, Keeper} {
		pct := 0.0
		if totalWinners > 0 {
			pct = float64(winsByArch[a]) / float64(totalWinners) * 100
		}
		fmt.Printf("  %-12s %8d  (%5.1f%%)\n", a.String(), winsByArch[a], pct)
	}

	fmt.Println()
	fmt.Println("─── DIAGNOSIS ─────────────────────────────────────────────────")
	if totalViolations > 0 {
		fmt.Printf("  !! %d INVARIANT VIOLATIONS\n", totalViolations)
		shown := 0
		for _, r := range results {
			for _, v := range r.violations {
				if shown == 5 {
					break
				}
				fmt.Printf("     %s\n", v)
				shown++
			}
		}
	} else {
		fmt.Println("  OK no invariant violations")
	}
	if totalClaims+totalUnlocks > 0 {
		stalePct := float64(totalUnlocks) / float64(totalClaims+totalUnlocks) * 100
		if stalePct > 25 {
			fmt.Printf("  ~~ %.1f%% of rounds ended stale; consider a longer stale window\n", stalePct)
		} else {
			fmt.Printf("  OK %.1f%% of rounds ended stale\n", stalePct)
		}
	}
	fmt.Println()
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	t := 0.0
	for _, v := range s {
		t += v
	}
	return t / float64(len(s))
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * pct / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
