package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chambridge/capacity-stats/internal/config"
	"github.com/chambridge/capacity-stats/internal/db"
	"github.com/chambridge/capacity-stats/internal/processor"
	"github.com/chambridge/capacity-stats/internal/stats"
)

const districtCapacity = 6000

var cartridges = []string{
	"redhat/cart-php-5.3/comp-web",
	"redhat/cart-ruby-1.9/comp-web",
	"redhat/cart-nodejs-0.10/comp-web",
	"redhat/cart-mysql-5.1/comp-mysql-server",
	"redhat/cart-postgresql-9.2/comp-postgresql",
	"redhat/cart-jenkins-client-1/comp-client",
}

type fixtureNode struct {
	Host  string
	Facts map[string]any
}

type fixtureGear struct {
	Profile    string
	Node       string
	Components []string
}

type fixtureApp struct {
	Name    string
	Profile string
	Groups  [][]fixtureGear
}

type fixtureUser struct {
	Login string
	Apps  []fixtureApp
}

type fixture struct {
	Districts []stats.DistrictEntry
	Nodes     []fixtureNode
	Users     []fixtureUser
}

// buildFixture generates districts per profile, their nodes' facts, and users
// whose gears are placed on those nodes. One node per district is left out of
// the facts so it reports as missing, and one extra node has no district.
func buildFixture(rng *rand.Rand, profiles []string, districtsPerProfile, nodesPerDistrict, users int) fixture {
	var f fixture
	hostsByProfile := map[string][]string{}

	for _, profile := range profiles {
		for d := 0; d < districtsPerProfile; d++ {
			avail := districtCapacity - rng.IntN(districtCapacity/2)
			district := stats.DistrictEntry{
				ID:                uuid.NewString(),
				Profile:           profile,
				Name:              fmt.Sprintf("%s_%d", profile, d+1),
				Members:           stats.Membership{},
				Capacity:          districtCapacity,
				AvailableCapacity: avail,
				AvailableUIDs:     avail,
			}
			for n := 0; n < nodesPerDistrict; n++ {
				host := fmt.Sprintf("ex-%s-node%d-%d.example.com", profile, d+1, n+1)
				active := n == 0 || rng.IntN(5) > 0
				district.Members[host] = active
				hostsByProfile[profile] = append(hostsByProfile[profile], host)
				if n == nodesPerDistrict-1 && nodesPerDistrict > 1 {
					continue
				}
				f.Nodes = append(f.Nodes, fixtureNode{Host: host, Facts: nodeFacts(rng, profile, district.ID, active)})
			}
			f.Districts = append(f.Districts, district)
		}
	}
	if len(profiles) > 0 {
		host := fmt.Sprintf("ex-%s-spare.example.com", profiles[0])
		f.Nodes = append(f.Nodes, fixtureNode{Host: host, Facts: nodeFacts(rng, profiles[0], "", false)})
	}

	for u := 0; u < users; u++ {
		user := fixtureUser{Login: fmt.Sprintf("user%03d", u+1)}
		apps := rng.IntN(4)
		for a := 0; a < apps; a++ {
			profile := profiles[rng.IntN(len(profiles))]
			app := fixtureApp{Name: fmt.Sprintf("app%d", a+1), Profile: profile}
			groups := 1 + rng.IntN(2)
			for g := 0; g < groups; g++ {
				var gears []fixtureGear
				count := 1 + rng.IntN(3)
				for i := 0; i < count; i++ {
					gear := fixtureGear{
						Profile:    profile,
						Components: []string{cartridges[rng.IntN(len(cartridges))]},
					}
					if hosts := hostsByProfile[profile]; len(hosts) > 0 {
						gear.Node = hosts[rng.IntN(len(hosts))]
					}
					gears = append(gears, gear)
				}
				app.Groups = append(app.Groups, gears)
			}
			user.Apps = append(user.Apps, app)
		}
		f.Users = append(f.Users, user)
	}
	return f
}

func nodeFacts(rng *rand.Rand, profile, district string, active bool) map[string]any {
	maxActive := 50 + rng.IntN(150)
	total := rng.IntN(maxActive * 2)
	activePct := float64(rng.IntN(1000)) / 10
	return map[string]any{
		"node_profile":      profile,
		"district_uuid":     district,
		"district_active":   active,
		"gears_total_count": total,
		"max_gears":         maxActive * 2,
		"max_active_gears":  maxActive,
		"capacity":          float64(total) / float64(maxActive*2) * 100,
		"active_capacity":   activePct,
	}
}

func seed(ctx context.Context, repo *db.Repository, f fixture) error {
	for _, d := range f.Districts {
		if err := repo.UpsertDistrict(ctx, d); err != nil {
			return err
		}
	}
	for _, u := range f.Users {
		userID, err := repo.UpsertUser(ctx, u.Login)
		if err != nil {
			return err
		}
		for _, a := range u.Apps {
			appID, err := repo.InsertApplication(ctx, userID, a.Name, a.Profile)
			if err != nil {
				return err
			}
			for _, gears := range a.Groups {
				groupID, err := repo.InsertGroup(ctx, appID)
				if err != nil {
					return err
				}
				for _, g := range gears {
					if _, err := repo.InsertGear(ctx, groupID, g.Profile, g.Node, g.Components); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// writeFacts writes the node facts as a tar.gz snapshot that the report
// command reads with --facts-archive.
func writeFacts(outputFile string, f fixture) error {
	manifest := processor.Manifest{Users: len(f.Users)}
	facts := make(map[string]map[string]any, len(f.Nodes))
	for _, d := range f.Districts {
		manifest.Districts = append(manifest.Districts, d.ID)
	}
	for _, n := range f.Nodes {
		manifest.Nodes = append(manifest.Nodes, n.Host)
		facts[n.Host] = n.Facts
	}
	return processor.WriteFactsArchive(outputFile, manifest, facts)
}

func main() {
	var (
		outputFile          string
		districtsPerProfile int
		nodesPerDistrict    int
		users               int
		seedValue           uint64
		factsOnly           bool
	)
	flag.StringVar(&outputFile, "out", "test_facts.tar.gz", "Archive for generated node facts")
	flag.IntVar(&districtsPerProfile, "districts", 2, "Districts per profile")
	flag.IntVar(&nodesPerDistrict, "nodes", 3, "Nodes per district")
	flag.IntVar(&users, "users", 25, "Users to create")
	flag.Uint64Var(&seedValue, "seed", 1, "Random seed")
	flag.BoolVar(&factsOnly, "facts-only", false, "Only write node facts, skip the database")
	flag.Parse()

	rng := rand.New(rand.NewPCG(seedValue, seedValue))
	f := buildFixture(rng, []string{"small", "medium"}, districtsPerProfile, nodesPerDistrict, users)

	if err := writeFacts(outputFile, f); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write facts: %v\n", err)
		os.Exit(1)
	}

	if !factsOnly {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := seed(ctx, db.NewRepository(pool), f); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to seed database: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Successfully generated %d districts, %d node fact files and %d users in %s\n",
		len(f.Districts), len(f.Nodes), len(f.Users), outputFile)
}
