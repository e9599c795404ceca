// Command dbinspect prints a summary of a node's Badger keyed store. It opens
// the database read-only, so stop the node first or point it at a copy.
package main

import (
	"cmp"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/openbay/openbay-node/internal/domain"
	"github.com/openbay/openbay-node/internal/stream"
)

type summary struct {
	resources  map[string]domain.Resource
	tombstones int
	votes      map[string]map[string]domain.Direction
	aliases    []string
	private    map[string]int
	other      int
}

func main() {
	defaultPath := os.Getenv("STORE_PATH")
	if defaultPath == "" {
		home, _ := os.UserHomeDir()
		defaultPath = filepath.Join(home, ".openbay", "store")
	}

	dbPath := flag.String("path", defaultPath, "Badger store directory")
	root := flag.String("root", "gunbay", "Catalog namespace")
	limit := flag.Int("limit", 10, "Resources to list")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	s := &summary{
		resources: make(map[string]domain.Resource),
		votes:     make(map[string]map[string]domain.Direction),
		private:   make(map[string]int),
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			path, err := stream.ParsePath(key)
			if err != nil {
				log.Printf("Skipping undecodable key %q: %v", key, err)
				continue
			}

			err = item.Value(func(val []byte) error {
				var value any
				if err := json.Unmarshal(val, &value); err != nil {
					return err
				}
				s.add(*root, path, value)
				return nil
			})
			if err != nil {
				log.Printf("Error reading %s: %v", key, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Error iterating database: %v", err)
	}

	s.print(*limit)
}

func (s *summary) add(root string, path stream.Path, value any) {
	switch {
	case len(path) == 3 && path[0] == root && path[1] == "torrents":
		fields, ok := value.(map[string]any)
		if !ok {
			s.tombstones++
			return
		}
		s.resources[path[2]] = domain.ResourceFromFields(path[2], fields)

	case len(path) == 4 && path[0] == root && path[1] == "feedback":
		dir, _ := value.(string)
		d, ok := domain.ParseDirection(dir)
		if !ok {
			return
		}
		if s.votes[path[2]] == nil {
			s.votes[path[2]] = make(map[string]domain.Direction)
		}
		s.votes[path[2]][path[3]] = d

	case len(path) == 2 && path[0] == "~@":
		if value != nil {
			s.aliases = append(s.aliases, path[1])
		}

	case len(path) > 0 && strings.HasPrefix(path[0], "~"):
		s.private[path[0]]++

	default:
		s.other++
	}
}

func (s *summary) print(limit int) {
	fmt.Println("=== Store Inspection ===")
	fmt.Println()

	rows := make([]domain.Resource, 0, len(s.resources))
	displayable := 0
	for _, r := range s.resources {
		if r.Displayable() {
			displayable++
		}
		rows = append(rows, r)
	}
	slices.SortFunc(rows, func(a, b domain.Resource) int {
		return cmp.Or(
			cmp.Compare(domain.TallyVotes(s.votes[b.ID]).Score, domain.TallyVotes(s.votes[a.ID]).Score),
			b.UploadedAt.Compare(a.UploadedAt),
		)
	})

	for i, r := range rows {
		if i >= limit {
			fmt.Printf("... and %d more resources\n\n", len(rows)-limit)
			break
		}
		tally := domain.TallyVotes(s.votes[r.ID])
		fmt.Printf("Resource: %s\n", r.Name)
		fmt.Printf("  ID: %s\n", r.ID)
		fmt.Printf("  Category: %s\n", r.Category)
		fmt.Printf("  Uploaded: %s by %s\n", r.UploadedAt.Format("2006-01-02 15:04"), r.UploadedBy)
		fmt.Printf("  Votes: +%d -%d (score %d)\n", tally.Up, tally.Down, tally.Score)
		if !r.Displayable() {
			fmt.Println("  (not displayable: missing name or magnet)")
		}
		fmt.Println()
	}

	voteCount := 0
	for _, v := range s.votes {
		voteCount += len(v)
	}
	privateRecords := 0
	for _, n := range s.private {
		privateRecords += n
	}
	slices.Sort(s.aliases)

	fmt.Println("=== Summary ===")
	fmt.Printf("Resources: %d (%d displayable)\n", len(s.resources), displayable)
	fmt.Printf("Retracted: %d\n", s.tombstones)
	fmt.Printf("Votes: %d across %d resources\n", voteCount, len(s.votes))
	fmt.Printf("Aliases: %d %v\n", len(s.aliases), s.aliases)
	fmt.Printf("Private namespaces: %d (%d keys)\n", len(s.private), privateRecords)
	if s.other > 0 {
		fmt.Printf("Other keys: %d\n", s.other)
	}
}
