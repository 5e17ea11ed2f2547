package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitviz/gitviz/internal/config"
	"github.com/gitviz/gitviz/internal/pipeline"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check external tools and storage",
	Long: `Reports whether the external tools gitviz shells out to are
installed and where identity mappings and scan caches live.`,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("🩺 Gitviz environment")

	var missing []string
	for _, dep := range pipeline.CheckDependencies() {
		if dep.Found {
			fmt.Printf("  ✅ %-7s %s\n", dep.Name, dep.Path)
		} else {
			fmt.Printf("  ❌ %-7s not found in PATH\n", dep.Name)
			missing = append(missing, dep.Name)
		}
	}

	fmt.Println("\n💾 Identity store")
	backend, location := storeBackend()
	fmt.Printf("  backend  = %s\n", backend)
	fmt.Printf("  location = %s\n", location)
	fmt.Printf("  avatars  = %s\n", cfg.Store.AvatarDir)

	fmt.Println("\n🗂  Scan cache")
	fmt.Printf("  enabled = %v\n", cfg.Scan.CacheEnabled)
	fmt.Printf("  path    = %s\n", cfg.Scan.CachePath)

	fmt.Println("\n⚙️  Configuration")
	fmt.Printf("  file = %s\n", activeConfigPath())

	if len(missing) > 0 {
		fmt.Printf("\n💡 Install %s to run visualizations\n", strings.Join(missing, ", "))
	}
	return nil
}

func storeBackend() (backend, location string) {
	switch {
	case cfg.Store.PostgresDSN != "":
		return "postgres", maskDSN(cfg.Store.PostgresDSN)
	case strings.HasSuffix(cfg.Store.Path, ".yaml"), strings.HasSuffix(cfg.Store.Path, ".yml"):
		return "yaml", cfg.Store.Path
	default:
		return "sqlite", cfg.Store.Path
	}
}

func activeConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}
