package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/version"
	"github.com/tomski747/pvm/pkg/models"
)

func (a *App) installCommand() *cobra.Command {
	var useAfter, refresh bool
	cmd := &cobra.Command{
		Use:   "install <version>...",
		Short: "Install one or more versions of Pulumi",
		Long:  "Install Pulumi versions. Each argument may be an exact version, a prefix such as 3.78, or 'latest'.",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if useAfter && len(args) != 1 {
				return apperr.Errorf(apperr.InvalidSpec, "cli", "--use needs exactly one version")
			}
			specs, err := parseSpecs(args)
			if err != nil {
				return err
			}
			s, err := a.svc()
			if err != nil {
				return err
			}
			if s.Registry == nil || s.Installer == nil {
				return unavailable("install")
			}

			ctx := cmd.Context()
			var entries []models.RegistryEntry
			seen := map[string]bool{}
			for _, spec := range specs {
				entry, err := s.Registry.ResolveRemote(ctx, spec, refresh)
				if err != nil {
					return err
				}
				if seen[entry.Number] {
					continue
				}
				seen[entry.Number] = true
				entries = append(entries, *entry)
			}

			results, installErr := s.Installer.InstallAll(ctx, entries)
			failed := 0
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintf(a.out, "%s %s: %v\n", a.colors.failure.Sprint("✗"), r.Entry.Number, r.Err)
				case r.Result.Skipped:
					fmt.Fprintf(a.out, "%s Pulumi %s is already installed\n", a.colors.info.Sprint("•"), r.Entry.Number)
				default:
					fmt.Fprintf(a.out, "%s Installed Pulumi %s\n", a.colors.success.Sprint("✓"), r.Entry.Number)
				}
			}
			if installErr != nil {
				// 每个失败已逐行输出，这里只返回带错误类别的汇总。
				if failed == 0 {
					return installErr
				}
				return apperr.Errorf(apperr.KindOf(installErr), "install", "%d of %d install(s) failed", failed, len(entries))
			}

			if !useAfter {
				if len(entries) == 1 {
					fmt.Fprintf(a.out, "\nTo use this version, run: pvm use %s\n", entries[0].Number)
				}
				return nil
			}
			if s.Switcher == nil {
				return unavailable("use")
			}
			v, err := s.Switcher.UseVersion(version.MustParseSpec(entries[0].Number))
			if err != nil {
				return fmt.Errorf("failed to switch to version %s: %w", entries[0].Number, err)
			}
			fmt.Fprintf(a.out, "Now using Pulumi %s\n", a.colors.current.Sprint(v.Number))
			return nil
		},
	}
	cmd.Flags().BoolVar(&useAfter, "use", false, "Switch to this version after installing")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached release list")
	return cmd
}

func (a *App) useCommand() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "use <version>",
		Short: "Switch to an installed version of Pulumi",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := version.ParseSpec(args[0])
			if err != nil {
				return err
			}
			s, err := a.svc()
			if err != nil {
				return err
			}
			if s.Switcher == nil {
				return unavailable("use")
			}
			dir, err := a.workDir()
			if err != nil {
				return fmt.Errorf("cli: working directory: %w", err)
			}

			if local {
				v, path, err := s.Switcher.UseLocal(dir, spec)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Pinned Pulumi %s in %s\n", a.colors.current.Sprint(v.Number), path)
				return nil
			}

			v, err := s.Switcher.UseVersion(spec)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Now using Pulumi %s\n", a.colors.current.Sprint(v.Number))
			a.warnIfShadowed(dir, v.Number)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Pin the version for this project in "+version.ProjectFileName)
	return cmd
}

// warnIfShadowed 提示全局切换被项目文件覆盖的情况。
func (a *App) warnIfShadowed(dir, number string) {
	if a.services.Lister == nil {
		return
	}
	sel, err := a.services.Lister.Current(dir)
	if err != nil || sel.Scope != version.ScopeProject || sel.Version == nil || sel.Version.Number == number {
		return
	}
	fmt.Fprintf(a.out, "%s %s pins Pulumi %s in this directory\n", a.colors.warning.Sprint("note:"), sel.Source, sel.Version.Number)
}

func (a *App) listCommand() *cobra.Command {
	var remote, refresh bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed or published versions of Pulumi",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc()
			if err != nil {
				return err
			}
			if s.Lister == nil {
				return unavailable("list")
			}
			if remote {
				return a.printRemote(cmd, s.Lister, refresh)
			}
			return a.printLocal(s.Lister)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "List versions published upstream")
	cmd.Flags().BoolVar(&remote, "all", false, "Alias for --remote")
	_ = cmd.Flags().MarkHidden("all")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Ignore the cached release list")
	return cmd
}

func (a *App) printRemote(cmd *cobra.Command, lister ListService, refresh bool) error {
	versions, err := lister.RemoteVersions(cmd.Context(), refresh)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(a.out, "No remote versions available.")
		return nil
	}
	fmt.Fprintln(a.out, "Available versions (* installed, → current):")
	for _, v := range versions {
		line := version.FormatRemoteVersion(v)
		switch {
		case v.Current:
			line = a.colors.current.Sprint(line)
		case v.Installed:
			line = a.colors.success.Sprint(line)
		}
		fmt.Fprintf(a.out, "  %s\n", line)
	}
	return nil
}

func (a *App) printLocal(lister ListService) error {
	versions, err := lister.LocalVersions()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(a.out, "No versions installed.")
		return nil
	}
	fmt.Fprintln(a.out, "Installed versions:")
	for _, v := range versions {
		line := version.FormatLocalVersion(v)
		if v.IsCurrent {
			line = a.colors.current.Sprint(line)
		}
		fmt.Fprintf(a.out, "  %s\n", line)
	}
	return nil
}

func (a *App) currentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the active version of Pulumi",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc()
			if err != nil {
				return err
			}
			if s.Lister == nil {
				return unavailable("current")
			}
			dir, err := a.workDir()
			if err != nil {
				return fmt.Errorf("cli: working directory: %w", err)
			}
			sel, err := s.Lister.Current(dir)
			if err != nil {
				return err
			}
			switch sel.Scope {
			case version.ScopeNone:
				fmt.Fprintln(a.out, "No Pulumi version selected. Run: pvm use <version>")
			case version.ScopeProject:
				fmt.Fprintf(a.out, "%s (set by %s)\n", a.colors.current.Sprint(sel.Version.Number), sel.Source)
			default:
				fmt.Fprintf(a.out, "%s (global)\n", a.colors.current.Sprint(sel.Version.Number))
			}
			return nil
		},
	}
}

func (a *App) uninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall <version>",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove an installed version of Pulumi",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc()
			if err != nil {
				return err
			}
			if s.Uninstaller == nil {
				return unavailable("uninstall")
			}
			cleared, err := s.Uninstaller.Uninstall(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s Uninstalled Pulumi %s\n", a.colors.success.Sprint("✓"), args[0])
			if cleared {
				fmt.Fprintf(a.out, "%s no version is selected now. Run: pvm use <version>\n", a.colors.warning.Sprint("note:"))
			}
			return nil
		},
	}
}

func (a *App) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check installed versions against the state directory",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc()
			if err != nil {
				return err
			}
			if s.Verifier == nil {
				return unavailable("verify")
			}
			drifts, err := s.Verifier.Verify()
			if err != nil {
				return err
			}
			if len(drifts) == 0 {
				fmt.Fprintf(a.out, "%s state is consistent\n", a.colors.success.Sprint("✓"))
				return nil
			}
			for _, d := range drifts {
				fmt.Fprintf(a.out, "%s %s\n", a.colors.warning.Sprint("!"), d)
			}
			return apperr.Errorf(apperr.StateCorruption, "verify", "%d problem(s) found", len(drifts))
		},
	}
}

func (a *App) setupCommand() *cobra.Command {
	var shell string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Add the pvm bin directory to your shell PATH",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.svc()
			if err != nil {
				return err
			}
			if s.Setup == nil {
				return unavailable("setup")
			}
			var path string
			if shell != "" {
				path, err = s.Setup.UpdateShellConfig(shell)
			} else {
				path, err = s.Setup.ConfigureEnvironment()
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Updated %s. Restart your shell to pick up the change.\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&shell, "shell", "", "Shell to configure (bash, zsh, fish); detected from $SHELL by default")
	return cmd
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pvm version",
		Args:  exactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "pvm version %s\n", a.version)
		},
	}
}
