package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomski747/pvm/internal/apperr"
	"github.com/tomski747/pvm/internal/storage"
	"github.com/tomski747/pvm/internal/version"
	"github.com/tomski747/pvm/pkg/models"
)

// ListService 描述版本查询能力。
type ListService interface {
	RemoteVersions(ctx context.Context, refresh bool) ([]version.RemoteVersion, error)
	LocalVersions() ([]models.InstalledVersion, error)
	Current(dir string) (version.Selection, error)
}

// ResolveService 描述远程版本解析能力。
type ResolveService interface {
	ResolveRemote(ctx context.Context, spec version.Spec, refresh bool) (*models.RegistryEntry, error)
}

// InstallService 描述批量安装能力。
type InstallService interface {
	InstallAll(ctx context.Context, entries []models.RegistryEntry) ([]version.BatchResult, error)
}

// SwitchService 描述版本切换能力。
type SwitchService interface {
	UseVersion(spec version.Spec) (*models.InstalledVersion, error)
	UseLocal(dir string, spec version.Spec) (*models.InstalledVersion, string, error)
}

// UninstallService 描述卸载能力。
type UninstallService interface {
	Uninstall(version string) (bool, error)
}

// VerifyService 描述状态校验能力。
type VerifyService interface {
	Verify() ([]storage.Drift, error)
}

// SetupService 描述 shell 配置能力。
type SetupService interface {
	ConfigureEnvironment() (string, error)
	UpdateShellConfig(shellType string) (string, error)
}

// Services 汇总命令依赖的服务。
type Services struct {
	Lister      ListService
	Registry    ResolveService
	Installer   InstallService
	Switcher    SwitchService
	Uninstaller UninstallService
	Verifier    VerifyService
	Setup       SetupService
}

// GlobalOptions 是所有命令共享的全局参数。
type GlobalOptions struct {
	ConfigPath string
	Verbose    bool
	NoColor    bool
}

// Factory 根据全局参数构造服务，只在命令真正需要时调用一次。
type Factory func(GlobalOptions) (*Services, error)

// App 负责 CLI 命令解析与分发。
type App struct {
	out     io.Writer
	version string
	factory Factory
	workDir func() (string, error)

	opts     GlobalOptions
	colors   palette
	services *Services
}

// NewApp 创建 CLI 应用实例。
func NewApp(out io.Writer, factory Factory, version string) *App {
	if out == nil {
		out = os.Stdout
	}
	return &App{
		out:     out,
		version: version,
		factory: factory,
		workDir: os.Getwd,
	}
}

// Options 返回解析后的全局参数，Run 之后有效。
func (a *App) Options() GlobalOptions {
	return a.opts
}

// Run 解析参数并执行命令。
func (a *App) Run(ctx context.Context, args []string) error {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.out)
	return root.ExecuteContext(ctx)
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pvm",
		Short: "Pulumi Version Manager",
		Long: `pvm installs and switches between versions of the Pulumi CLI.

Examples:
  pvm install 3.78.1    Install Pulumi 3.78.1
  pvm install 3.78      Install the newest 3.78.x release
  pvm use latest        Switch to the newest installed version
  pvm use 3.78 --local  Pin this project to 3.78.x
  pvm list --remote     List published versions`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.colors = newPalette(ColorEnabled(a.out, a.opts.NoColor))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return apperr.New(apperr.InvalidSpec, "cli", "", err)
	})

	flags := root.PersistentFlags()
	flags.BoolVar(&a.opts.NoColor, "no-color", false, "Disable color output")
	flags.BoolVarP(&a.opts.Verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&a.opts.ConfigPath, "config", "", "Path to config file (default <root>/config.yaml)")

	root.AddCommand(
		a.installCommand(),
		a.useCommand(),
		a.listCommand(),
		a.currentCommand(),
		a.uninstallCommand(),
		a.verifyCommand(),
		a.setupCommand(),
		a.versionCommand(),
	)
	return root
}

// svc 延迟构造服务，保证 --config 与 --verbose 已经解析。
func (a *App) svc() (*Services, error) {
	if a.services != nil {
		return a.services, nil
	}
	if a.factory == nil {
		return nil, errors.New("cli: no service factory configured")
	}
	s, err := a.factory(a.opts)
	if err != nil {
		return nil, err
	}
	a.services = s
	return s, nil
}

// exactArgs 与 cobra.ExactArgs 相同，但参数错误按 InvalidSpec 处理。
func exactArgs(n int) cobra.PositionalArgs {
	return usageArgs(cobra.ExactArgs(n))
}

func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return apperr.New(apperr.InvalidSpec, "cli", "", err)
		}
		return nil
	}
}

func parseSpecs(inputs []string) ([]version.Spec, error) {
	specs := make([]version.Spec, 0, len(inputs))
	for _, in := range inputs {
		spec, err := version.ParseSpec(in)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func unavailable(name string) error {
	return fmt.Errorf("cli: %s is unavailable", name)
}
