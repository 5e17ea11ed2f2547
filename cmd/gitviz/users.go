package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	apperrors "github.com/gitviz/gitviz/internal/errors"
	"github.com/gitviz/gitviz/internal/identity"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage committer identity mappings",
	Long: `Committers often appear under several names and emails across
repositories. These commands bind raw committer identifiers to one
canonical person so the visualization draws a single user for all of
them.`,
}

var usersMapCmd = &cobra.Command{
	Use:   "map <raw> <canonical>",
	Short: "Map a raw committer identifier to a canonical name",
	Long: `Binds a raw committer name or email to a canonical person.

Examples:
  gitviz users map jdoe "John Doe"
  gitviz users map john.doe@corp.example "John Doe"`,
	Args: cobra.ExactArgs(2),
	RunE: runUsersMap,
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identity mappings and avatars",
	RunE:  runUsersList,
}

var usersSetAvatarCmd = &cobra.Command{
	Use:   "set-avatar <canonical> <image>",
	Short: "Attach an avatar image to a canonical name",
	Long: `Copies the image into the avatar directory under the canonical
name so the renderer can pick it up, and records the reference.`,
	Args: cobra.ExactArgs(2),
	RunE: runUsersSetAvatar,
}

func init() {
	usersCmd.AddCommand(usersMapCmd)
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersSetAvatarCmd)

	usersMapCmd.Flags().BoolP("yes", "y", false, "skip the similar-name confirmation")
}

func runUsersMap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	raw, canonical := args[0], args[1]

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		return err
	}
	resolver := identity.NewResolverFromState(state)

	yes, _ := cmd.Flags().GetBool("yes")
	if suggestions := resolver.SuggestSimilar(canonical); len(suggestions) > 0 && !yes {
		fmt.Printf("⚠️  %q is similar to existing identities:\n", canonical)
		for _, name := range suggestions {
			fmt.Printf("   - %s\n", name)
		}
		if isInteractive() {
			fmt.Print("Map anyway? [y/N]: ")
			var response string
			fmt.Scanln(&response)
			if response != "y" && response != "Y" {
				fmt.Println("Mapping cancelled")
				return nil
			}
		}
	}

	resolver.AddMapping(raw, canonical)
	if err := store.Save(ctx, resolver.State()); err != nil {
		return err
	}

	fmt.Printf("✅ Mapped %q to %q\n", raw, canonical)
	return nil
}

func runUsersList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		return err
	}
	resolver := identity.NewResolverFromState(state)

	mappings := resolver.Mappings()
	if len(mappings) == 0 {
		fmt.Println("No identity mappings configured")
		fmt.Println("💡 Add one with: gitviz users map <raw> <canonical>")
		return nil
	}

	fmt.Printf("📋 %d identity mappings\n", len(mappings))
	for _, m := range mappings {
		fmt.Printf("  %s -> %s\n", m.Raw, m.Canonical)
	}

	var withAvatar bool
	for _, p := range resolver.Persons() {
		if p.Avatar != "" {
			if !withAvatar {
				fmt.Println("\n🖼  Avatars")
				withAvatar = true
			}
			fmt.Printf("  %s: %s\n", p.Name, p.Avatar)
		}
	}
	return nil
}

func runUsersSetAvatar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	canonical, imagePath := args[0], args[1]

	info, err := os.Stat(imagePath)
	if err != nil || info.IsDir() {
		return apperrors.Newf(apperrors.KindInternal, "avatar image %s is not a readable file", imagePath)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		return err
	}
	resolver := identity.NewResolverFromState(state)

	dst := filepath.Join(cfg.Store.AvatarDir,
		sanitizeAvatarName(canonical)+strings.ToLower(filepath.Ext(imagePath)))

	// Validate the canonical name before touching the avatar directory.
	if err := resolver.SetAvatar(canonical, dst); err != nil {
		return err
	}
	if err := copyFile(imagePath, dst); err != nil {
		return apperrors.Internal(err, "copy avatar image")
	}
	if err := store.Save(ctx, resolver.State()); err != nil {
		return err
	}

	fmt.Printf("✅ Avatar for %s: %s\n", canonical, dst)
	return nil
}

func openStore() (identity.Store, error) {
	return identity.Open(identity.Options{
		Path:        cfg.Store.Path,
		PostgresDSN: cfg.Store.PostgresDSN,
	}, logger)
}

// sanitizeAvatarName makes a canonical name safe as a file name. The
// renderer matches avatars by drawn user name, so spaces stay.
func sanitizeAvatarName(name string) string {
	return strings.NewReplacer("/", "-", "\\", "-", "|", " ").Replace(name)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// isInteractive returns true if stdin is a terminal (not piped)
func isInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}
