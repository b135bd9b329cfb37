// Package main provides the entry point for the speakstream CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/speakstream/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	debug      bool
	noPlay     bool
	subtitled  bool

	// cfg is the effective configuration, loaded before any command runs.
	cfg config.Config

	closeLog = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "speakstream [TEXT|FILE|-]",
		Short: "Speak streaming text aloud as it arrives",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text %s, sentence by sentence, and save every response as a WAV file.", keyword("as it streams in")),
		),
		Example:           paragraph("echo 'Hello there. How are you?' | speakstream\nspeakstream notes.md\nspeakstream --clipboard"),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.ArbitraryArgs,
		PersistentPreRunE: loadConfig,
		RunE:              runSpeak,
	}
)

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}
	if cmd.Flags().Changed("no-play") {
		viper.Set("audio.play", !noPlay)
	}

	var err error
	if cfg, err = config.Load(viper.GetViper()); err != nil {
		return err
	}

	if closeLog, err = setupLog(cfg.Log, debug); err != nil {
		return err
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.BoolVar(&debug, "debug", false, "log debug output, also to the log file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.StringP("engine", "e", "", "synthesis engine (mock, command, piper, http)")
	flags.StringP("out", "o", "", "directory responses are saved to")
	flags.String("voice", "", "voice id passed to the engine")
	flags.Float64("speed", 0, "speaking speed, 1.0 is normal")
	flags.BoolVar(&noPlay, "no-play", false, "save responses without playing them")
	flags.BoolVarP(&subtitled, "subtitles", "s", false, "print sentences as their audio is ready instead of echoing the stream")

	// Config bindings
	_ = viper.BindPFlag("engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("audio.output_dir", flags.Lookup("out"))
	_ = viper.BindPFlag("voice.id", flags.Lookup("voice"))
	_ = viper.BindPFlag("voice.speed", flags.Lookup("speed"))

	defaults := config.Default()
	viper.SetDefault("engine", defaults.Engine)
	viper.SetDefault("voice.speed", defaults.Voice.Speed)
	viper.SetDefault("log.level", defaults.Log.Level)

	initSpeakFlags()
	rootCmd.AddCommand(chatCmd, tailCmd, historyCmd, cacheCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	dirs, err := config.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName(config.AppName)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], config.AppName+".yml")
	}
}
