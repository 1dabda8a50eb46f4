package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/datapulse/internal/catalog"
)

var (
	sourcesProfile     string
	sourcesAll         bool
	sourcesPublicOnly  bool
	sourceAddName      string
	sourceAddType      string
	sourceAddURL       string
	sourceAddDomain    string
	sourceAddAuthority float64
	sourceAddTier      int
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the source catalog and subscriptions",
}

func openCatalog() *catalog.Catalog {
	return catalog.Open(cfg.Catalog.Path)
}

func profileFlag() string {
	if sourcesProfile != "" {
		return sourcesProfile
	}
	return cfg.Catalog.Profile
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), openCatalog().ListSources(sourcesAll, sourcesPublicOnly))
	},
}

var sourcesResolveCmd = &cobra.Command{
	Use:   "resolve <url>",
	Short: "Show which source a URL resolves to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), openCatalog().Resolve(args[0]))
	},
}

var sourcesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace a source",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sourceAddName == "" {
			return eris.New("sources add: --name is required")
		}
		s := catalog.Source{
			Name:            sourceAddName,
			SourceType:      sourceAddType,
			IsActive:        true,
			IsPublic:        true,
			Match:           catalog.Match{Domain: sourceAddDomain},
			Tier:            sourceAddTier,
			AuthorityWeight: sourceAddAuthority,
		}
		if sourceAddURL != "" {
			s.Config = map[string]any{"url": sourceAddURL}
		}
		added, err := openCatalog().AddSource(s)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), added)
	},
}

var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove <source-id>...",
	Short: "Delete sources and drop them from every subscription",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCatalog()
		for _, id := range args {
			ok, err := c.RemoveSource(id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed=%t\n", id, ok)
		}
		return nil
	},
}

var sourcesProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List subscription profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), openCatalog().Profiles())
	},
}

var sourcesSubscribeCmd = &cobra.Command{
	Use:   "subscribe <source-id>...",
	Short: "Subscribe the profile to sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCatalog()
		profile := profileFlag()
		for _, id := range args {
			ok, err := c.Subscribe(profile, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s subscribed=%t\n", id, ok)
		}
		return nil
	},
}

var sourcesUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe <source-id>...",
	Short: "Remove sources from the profile's subscription",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCatalog()
		profile := profileFlag()
		for _, id := range args {
			ok, err := c.Unsubscribe(profile, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s removed=%t\n", id, ok)
		}
		return nil
	},
}

var sourcesPacksCmd = &cobra.Command{
	Use:   "packs",
	Short: "List source packs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), openCatalog().ListPacks(sourcesPublicOnly))
	},
}

var sourcesInstallCmd = &cobra.Command{
	Use:   "install <pack-slug>",
	Short: "Subscribe the profile to every source in a pack",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCatalog()
		if _, ok := c.GetPack(args[0]); !ok {
			return eris.Errorf("sources install: unknown pack %s", args[0])
		}
		n, err := c.InstallPack(profileFlag(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s: %d sources added\n", args[0], n)
		return nil
	},
}

var sourcesImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Merge sources, packs and subscriptions from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "sources import: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		res, err := openCatalog().ImportYAML(f)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	sourcesCmd.PersistentFlags().StringVar(&sourcesProfile, "profile", "", "subscription profile (default from config)")
	sourcesListCmd.Flags().BoolVar(&sourcesAll, "all", false, "include inactive sources")
	sourcesListCmd.Flags().BoolVar(&sourcesPublicOnly, "public", false, "only public sources")
	sourcesPacksCmd.Flags().BoolVar(&sourcesPublicOnly, "public", false, "only public packs")

	sourcesAddCmd.Flags().StringVar(&sourceAddName, "name", "", "source name")
	sourcesAddCmd.Flags().StringVar(&sourceAddType, "type", "generic", "source type, '|'-separated for several")
	sourcesAddCmd.Flags().StringVar(&sourceAddURL, "url", "", "source URL")
	sourcesAddCmd.Flags().StringVar(&sourceAddDomain, "domain", "", "match items from this domain")
	sourcesAddCmd.Flags().Float64Var(&sourceAddAuthority, "authority", 0, "authority weight in [0, 1] (default 0.5)")
	sourcesAddCmd.Flags().IntVar(&sourceAddTier, "tier", 0, "tier 1-3 (default 2)")

	sourcesCmd.AddCommand(
		sourcesListCmd,
		sourcesResolveCmd,
		sourcesAddCmd,
		sourcesRemoveCmd,
		sourcesProfilesCmd,
		sourcesSubscribeCmd,
		sourcesUnsubscribeCmd,
		sourcesPacksCmd,
		sourcesInstallCmd,
		sourcesImportCmd,
	)
	rootCmd.AddCommand(sourcesCmd)
}
