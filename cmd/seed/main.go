// Package main provides a tool to seed a node's store with sample listings.
//
// It registers (or logs in) a handful of test aliases, publishes sample
// resources under each of them and casts random votes, all through the
// catalog so the records look exactly like ones a node would write.
//
// Usage:
//
//	go run ./cmd/seed -path ~/.openbay/store
//	go run ./cmd/seed -users 5 -resources 4
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/openbay/openbay-node/internal/auth"
	"github.com/openbay/openbay-node/internal/catalog"
	"github.com/openbay/openbay-node/internal/domain"
	domainerrors "github.com/openbay/openbay-node/internal/errors"
	"github.com/openbay/openbay-node/internal/service"
	"github.com/openbay/openbay-node/internal/stream"
	"github.com/openbay/openbay-node/internal/stream/badgerkv"
)

var samples = []catalog.ResourceFields{
	{Name: "Ubuntu 24.04 LTS Desktop", Category: "software", Size: "5.7 GB", Description: "Official desktop ISO"},
	{Name: "Big Buck Bunny", Category: "video", Size: "263 MB", Description: "Blender open movie, 1080p"},
	{Name: "Sintel", Category: "video", Size: "1.2 GB", Description: "Blender open movie"},
	{Name: "Free Music Archive sampler", Category: "audio", Size: "410 MB"},
	{Name: "0 A.D. Alpha 26", Category: "games", Size: "2.1 GB", Description: "Historical RTS"},
	{Name: "Debian 12 netinst", Category: "software", Size: "628 MB"},
	{Name: "Creative Commons photo pack", Category: "pictures", Size: "88 MB"},
	{Name: "Public domain audiobooks vol. 1", Category: "audio", Size: "1.4 GB"},
}

func main() {
	home, _ := os.UserHomeDir()
	storePath := flag.String("path", filepath.Join(home, ".openbay", "store"), "Badger store directory")
	root := flag.String("root", catalog.DefaultRoot, "Catalog namespace")
	users := flag.Int("users", 3, "Number of test aliases")
	perUser := flag.Int("resources", 3, "Resources published per alias")
	password := flag.String("password", "seed-password", "Password for every test alias")
	flag.Parse()

	fmt.Printf("Opening store at: %s\n", *storePath)

	backend, err := badgerkv.Open(*storePath, nil)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	store := stream.NewStore(backend, stream.Options{})
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Failed to close store: %v", err)
		}
	}()

	key, err := auth.LoadOrGenerateKey(filepath.Join(filepath.Dir(*storePath), "auth.key"))
	if err != nil {
		log.Fatalf("Failed to load auth key: %v", err)
	}
	tokens, err := auth.NewTokenService(key, time.Hour)
	if err != nil {
		log.Fatalf("Failed to create token service: %v", err)
	}

	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	identity := catalog.NewIdentityContext(nil)
	cat := catalog.NewService(store, identity, nil, catalog.Options{Root: *root, Logger: logger})
	if err := cat.Start(ctx); err != nil {
		log.Fatalf("Failed to start catalog: %v", err)
	}
	defer cat.Stop()

	accounts := service.NewAuthService(store, identity, tokens, auth.NewChallengeStore(time.Minute), nil, logger)
	if err := accounts.Start(ctx); err != nil {
		log.Fatalf("Failed to start auth service: %v", err)
	}
	defer accounts.Stop()

	aliases := make([]string, *users)
	for i := range aliases {
		aliases[i] = fmt.Sprintf("seed-user-%d", i+1)
	}

	published := 0
	var resourceIDs []string
	for _, alias := range aliases {
		userCtx, err := actAs(ctx, accounts, alias, *password)
		if err != nil {
			log.Printf("Skipping %s: %v", alias, err)
			continue
		}
		fmt.Printf("\nPublishing as %s\n", alias)

		for range *perUser {
			fields := samples[rand.IntN(len(samples))]
			fields.Magnet = fmt.Sprintf("magnet:?xt=urn:btih:%040x&dn=%s", rand.Uint64(), alias)

			resourceID, err := cat.Publish(userCtx, fields, nil)
			if err != nil {
				log.Printf("  Failed to publish %q: %v", fields.Name, err)
				continue
			}
			resourceIDs = append(resourceIDs, resourceID)
			published++
			fmt.Printf("  + %s (%s)\n", fields.Name, resourceID)
		}
	}

	votes := 0
	for _, alias := range aliases {
		userCtx, err := actAs(ctx, accounts, alias, *password)
		if err != nil {
			continue
		}
		for _, resourceID := range resourceIDs {
			// Roughly half abstain; of the rest, two in three vote up.
			roll := rand.IntN(6)
			if roll < 3 {
				continue
			}
			dir := "up"
			if roll == 5 {
				dir = "down"
			}
			if err := cat.Vote(userCtx, resourceID, domain.Direction(dir), nil); err != nil {
				log.Printf("  Failed to vote on %s: %v", resourceID, err)
				continue
			}
			votes++
		}
	}

	if err := store.Flush(ctx); err != nil {
		log.Fatalf("Failed to flush store: %v", err)
	}

	fmt.Println("\n=== Seeding Complete ===")
	fmt.Printf("Aliases: %d\n", len(aliases))
	fmt.Printf("Resources published: %d\n", published)
	fmt.Printf("Votes cast: %d\n", votes)
	fmt.Printf("Resources now indexed: %d\n", cat.Index().Len())
}

// actAs registers alias, or logs in when it already exists, and returns ctx
// acting for that identity.
func actAs(ctx context.Context, accounts *service.AuthService, alias, password string) (context.Context, error) {
	session, err := accounts.Register(ctx, service.RegisterRequest{Alias: alias, Password: password})
	if errors.Is(err, domainerrors.ErrInvalidInput) {
		session, err = accounts.Login(ctx, service.LoginRequest{Alias: alias, Password: password})
	}
	if err != nil {
		return nil, err
	}
	return catalog.WithIdentity(ctx, session.Identity), nil
}
