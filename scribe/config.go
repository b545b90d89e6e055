package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/template"

	"github.com/ebailey78/scribe/segmenter"
	"github.com/ebailey78/scribe/synthesis"
	"github.com/jrick/flagfile"
	homedir "github.com/mitchellh/go-homedir"
	strduration "github.com/xhit/go-str2duration/v2"
)

const (
	appName = "scribe"

	lockFileName   = "scribe.lock"
	jargonFileName = "jargon.txt"
)

var (
	// Error to signal loadConfig() completed everything the cmd had to do
	// and main() should exit.
	errCmdDone = errors.New("cmd done")
)

type errConfigDoesNotExist struct {
	configPath string
}

func (err errConfigDoesNotExist) Error() string {
	return fmt.Sprintf("config file %q does not exist", err.configPath)
}

type config struct {
	Root        string
	SessionsDir string
	PromListen  string

	ListDevices bool
	Synthesize  string
	Quiet       bool

	Device       string
	MixMic       bool
	MicDevice    string
	MicGain      float64
	LoopbackGain float64

	Policy        segmenter.Policy
	ArchiveFormat string

	WhisperURL    string
	WhisperModel  string
	WhisperLang   string
	WhisperAPIKey string
	JargonFile    string

	SynthAuto   bool
	OllamaURL   string
	OllamaModel string
	PagesDir    string

	LogFile     string
	MaxLogFiles int
	DebugLevel  string
}

// lockFilePath is where the single-instance lock lives for this root.
func (cfg *config) lockFilePath() string {
	return filepath.Join(cfg.Root, lockFileName)
}

func defaultAppDataDir(homeDir string) string {
	switch runtime.GOOS {
	// Attempt to use the LOCALAPPDATA or APPDATA environment variable on
	// Windows.
	case "windows":
		// Windows XP and before didn't have a LOCALAPPDATA, so fallback
		// to regular APPDATA when LOCALAPPDATA is not set.
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}

		if appData != "" {
			return filepath.Join(appData, appName)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appName)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appName)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appName)
		}
	}

	return filepath.Join(".", appName)
}

// expandPath expands a leading ~ and any environment variables in path
// and cleans the result.
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(os.ExpandEnv(path)), nil
}

// defaultRootDir returns the default root dir for data for the given
// cfgFilePath.
func defaultRootDir(cfgFilePath string) string {
	return filepath.Dir(cfgFilePath)
}

func loadConfig() (*config, error) {
	// Setup defaults.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	defaultAppDir := defaultAppDataDir(homeDir)
	defaultCfgFile := filepath.Join(defaultAppDir, appName+".conf")
	defaultLogFile := filepath.Join(defaultAppDir, "applogs", appName+".log")
	defaultDebugLevel := "info"

	// Parse CLI arguments.
	fs := flag.NewFlagSet("CLI Arguments", flag.ContinueOnError)
	flagVersion := fs.Bool("version", false, "Display current version and exit")
	flagCfgFile := fs.String("cfg", defaultCfgFile, "Config file to load")
	flagProfile := fs.String("profile", "", "ip:port of where to run the go profiler")
	flagListDevices := fs.Bool("listdevices", false, "List audio devices and exit")
	flagSynthesize := fs.String("synthesize", "", "Generate notes for the given session id (or \"last\") and exit")
	flagQuiet := fs.Bool("quiet", false, "Do not echo log lines to stdout")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errCmdDone
		}
		return nil, err
	}

	if *flagProfile != "" {
		go http.ListenAndServe(*flagProfile, nil)
	}

	if *flagVersion {
		fmt.Println("Version: " + version())
		return nil, errCmdDone
	}

	// Make sure cfgFile is not empty.
	cfgFile := *flagCfgFile
	if cfgFile == "" {
		cfgFile = defaultCfgFile
	}
	cfgFile, err = expandPath(cfgFile)
	if err != nil {
		return nil, err
	}

	// Open config file.
	f, err := os.Open(cfgFile)
	if os.IsNotExist(err) {
		// Config file does not exist. Make main() write the default one
		// before retrying.
		return nil, errConfigDoesNotExist{configPath: cfgFile}
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	// Define config file flags.
	fs = flag.NewFlagSet("Config Options", flag.ContinueOnError)
	flagRootDir := fs.String("root", defaultAppDir, "Root of all recorder data")
	flagSessionsDir := fs.String("sessionsdir", "", "Where recorded sessions are stored")
	flagPromListen := fs.String("promlisten", "", "Address to expose prometheus metrics on")

	// audio
	flagDevice := fs.String("audio.device", "", "Loopback capture device name")
	flagMixMic := fs.Bool("audio.mixmic", false, "Mix the microphone into the recording")
	flagMicDevice := fs.String("audio.micdevice", "", "Microphone device name")
	flagMicGain := fs.Float64("audio.micgain", 1.0, "Microphone gain")
	flagLoopbackGain := fs.Float64("audio.loopbackgain", 1.0, "Loopback gain")

	// segmenter
	flagMinDuration := fs.String("segmenter.minduration", "60s", "Min audio buffered before a cut")
	flagMaxDuration := fs.String("segmenter.maxduration", "90s", "Max audio buffered before a forced cut")
	flagSilenceThreshold := fs.Float64("segmenter.silencethreshold", segmenter.DefaultSilenceThreshold, "Peak level under which the buffer tail counts as a pause")
	flagSilenceTail := fs.String("segmenter.silencetail", "500ms", "Buffer tail inspected for a pause")
	flagSilenceChunkThreshold := fs.Float64("segmenter.silencechunkthreshold", segmenter.DefaultSilenceChunkThreshold, "Peak level under which a whole segment counts as silent")
	flagMaxSilentSegments := fs.Int("segmenter.maxsilentsegments", segmenter.DefaultMaxSilentSegments, "Consecutive silent segments before auto-stop")
	flagArchiveFormat := fs.String("segmenter.archiveformat", "wav", "Audio archive format (wav or ogg)")

	// transcriber
	flagWhisperURL := fs.String("transcriber.url", "http://localhost:8000", "Base address of the transcription server")
	flagWhisperModel := fs.String("transcriber.model", "large-v3", "Transcription model name")
	flagWhisperLang := fs.String("transcriber.language", "", "Pin the transcription language")
	flagWhisperAPIKey := fs.String("transcriber.apikey", "", "Bearer token for the transcription server")
	flagJargonFile := fs.String("transcriber.jargonfile", "", "Vocabulary hint file, one term per line")

	// synthesis
	flagSynthAuto := fs.Bool("synthesis.auto", false, "Generate notes when the recording stops")
	flagOllamaURL := fs.String("synthesis.ollamaurl", synthesis.DefaultURL, "Base address of the ollama server")
	flagOllamaModel := fs.String("synthesis.model", synthesis.DefaultModel, "Model used to write the notes")
	flagPagesDir := fs.String("synthesis.pagesdir", "", "Logseq pages dir to copy finished notes into")

	// log
	flagLogFile := fs.String("log.logfile", defaultLogFile, "Log file location")
	flagMaxLogFiles := fs.Int("log.maxlogfiles", 0, "Max log files")
	flagDebugLevel := fs.String("log.debuglevel", defaultDebugLevel, "Debug Level")

	// Load config from file.
	parser := flagfile.Parser{
		ParseSections: true,
	}
	if err := parser.Parse(f, fs); err != nil {
		return nil, err
	}

	// Sanity check loaded flags.
	if *flagRootDir == "" {
		return nil, fmt.Errorf("flag 'root' cannot be empty")
	}
	minDuration, err := strduration.ParseDuration(*flagMinDuration)
	if err != nil {
		return nil, fmt.Errorf("invalid value for flag 'segmenter.minduration': %v", err)
	}
	maxDuration, err := strduration.ParseDuration(*flagMaxDuration)
	if err != nil {
		return nil, fmt.Errorf("invalid value for flag 'segmenter.maxduration': %v", err)
	}
	silenceTail, err := strduration.ParseDuration(*flagSilenceTail)
	if err != nil {
		return nil, fmt.Errorf("invalid value for flag 'segmenter.silencetail': %v", err)
	}
	archiveFormat := strings.ToLower(strings.TrimSpace(*flagArchiveFormat))
	if *flagWhisperURL == "" {
		return nil, fmt.Errorf("flag 'transcriber.url' cannot be empty")
	}

	// Clean paths.
	rootDir, err := expandPath(*flagRootDir)
	if err != nil {
		return nil, err
	}
	logFile, err := expandPath(*flagLogFile)
	if err != nil {
		return nil, err
	}
	pagesDir, err := expandPath(*flagPagesDir)
	if err != nil {
		return nil, err
	}

	// Reconfigure dirs that are based on the root dir when they are not
	// specified.
	sessionsDir := *flagSessionsDir
	if sessionsDir == "" {
		sessionsDir = filepath.Join(rootDir, "sessions")
	} else if sessionsDir, err = expandPath(sessionsDir); err != nil {
		return nil, err
	}
	jargonFile := *flagJargonFile
	if jargonFile == "" {
		jargonFile = filepath.Join(rootDir, jargonFileName)
	} else if jargonFile, err = expandPath(jargonFile); err != nil {
		return nil, err
	}

	// Return the final cfg object.
	return &config{
		Root:        rootDir,
		SessionsDir: sessionsDir,
		PromListen:  *flagPromListen,

		ListDevices: *flagListDevices,
		Synthesize:  *flagSynthesize,
		Quiet:       *flagQuiet,

		Device:       *flagDevice,
		MixMic:       *flagMixMic,
		MicDevice:    *flagMicDevice,
		MicGain:      *flagMicGain,
		LoopbackGain: *flagLoopbackGain,

		Policy: segmenter.Policy{
			MinDuration:           minDuration,
			MaxDuration:           maxDuration,
			SilenceThreshold:      *flagSilenceThreshold,
			SilenceTail:           silenceTail,
			SilenceChunkThreshold: *flagSilenceChunkThreshold,
			MaxSilentSegments:     *flagMaxSilentSegments,
		},
		ArchiveFormat: archiveFormat,

		WhisperURL:    *flagWhisperURL,
		WhisperModel:  *flagWhisperModel,
		WhisperLang:   *flagWhisperLang,
		WhisperAPIKey: *flagWhisperAPIKey,
		JargonFile:    jargonFile,

		SynthAuto:   *flagSynthAuto,
		OllamaURL:   *flagOllamaURL,
		OllamaModel: *flagOllamaModel,
		PagesDir:    pagesDir,

		LogFile:     logFile,
		MaxLogFiles: *flagMaxLogFiles,
		DebugLevel:  *flagDebugLevel,
	}, nil
}

func saveNewConfig(cfgFile string) error {
	// Figure out the config file name (which also establishes the data
	// root).
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	defaultAppDir := defaultAppDataDir(homeDir)
	defaultCfgFile := filepath.Join(defaultAppDir, appName+".conf")

	if cfgFile == "" {
		cfgFile = defaultCfgFile
	}

	// Derive the dirs from the config file location. We also replace the
	// home dir prefix by "~" in the saved config.
	root := defaultRootDir(cfgFile)
	if root[0] != '~' && strings.HasPrefix(root, homeDir) {
		root = "~" + root[len(homeDir):]
	}
	data := struct {
		Root       string
		LogFile    string
		WhisperURL string
		OllamaURL  string
	}{
		Root:       root,
		LogFile:    filepath.Join(root, "applogs", appName+".log"),
		WhisperURL: "http://localhost:8000",
		OllamaURL:  synthesis.DefaultURL,
	}

	tmpl, err := template.New("configfile").Parse(defaultConfigFileContent)
	if err != nil {
		return err
	}

	var generated bytes.Buffer
	if err := tmpl.Execute(&generated, data); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfgFile), 0o700); err != nil {
		return fmt.Errorf("unable to create data dir: %v", err)
	}

	return os.WriteFile(cfgFile, generated.Bytes(), 0o600)
}
