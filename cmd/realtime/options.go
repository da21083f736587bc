package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Thejuampi/realtime-client-go/realtime"
	"github.com/Thejuampi/realtime-client-go/rest"
	"github.com/Thejuampi/realtime-client-go/wire"
)

const (
	envURL      = "REALTIME_URL"
	envProject  = "REALTIME_PROJECT"
	envEncoding = "REALTIME_ENCODING"
	envLogLevel = "REALTIME_LOG_LEVEL"

	defaultURL     = "ws://127.0.0.1:8787"
	defaultProject = "local"
)

// options holds the settings shared by every command.
type options struct {
	envFile  string
	url      string
	project  string
	encoding string
	logLevel string
	socket   string
	clientID string
}

func (opts *options) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Env file to load before reading REALTIME_* variables")
	flags.StringVarP(&opts.url, "url", "u", "", "Broker base URL (env "+envURL+")")
	flags.StringVarP(&opts.project, "project", "p", "", "Project name (env "+envProject+")")
	flags.StringVarP(&opts.encoding, "encoding", "e", "", "Wire encoding: msgpack or json (env "+envEncoding+")")
	flags.StringVar(&opts.logLevel, "log-level", "", "Client log level: debug, info, warn, error or event (env "+envLogLevel+")")
	flags.StringVar(&opts.socket, "socket", "gorilla", "Websocket implementation: gorilla or coder")
	flags.StringVar(&opts.clientID, "client-id", "", "Client id sent to the broker")
}

// load fills unset options from the environment. Flags win over
// environment variables, which win over the env file.
func (opts *options) load(cmd *cobra.Command) error {
	if opts.envFile != "" {
		err := godotenv.Load(opts.envFile)
		if err != nil && !(errors.Is(err, fs.ErrNotExist) && !cmd.Flag("env-file").Changed) {
			return fmt.Errorf("loading %s: %w", opts.envFile, err)
		}
	}

	opts.url = firstNonEmpty(opts.url, os.Getenv(envURL), defaultURL)
	opts.project = firstNonEmpty(opts.project, os.Getenv(envProject), defaultProject)
	opts.encoding = firstNonEmpty(opts.encoding, os.Getenv(envEncoding), "msgpack")
	opts.logLevel = firstNonEmpty(opts.logLevel, os.Getenv(envLogLevel), "error")

	if _, err := wire.ParseEncoding(opts.encoding); err != nil {
		return err
	}
	switch opts.socket {
	case "gorilla", "coder":
	default:
		return fmt.Errorf("unknown socket implementation %q", opts.socket)
	}
	return nil
}

// clientConfig builds the realtime configuration. Connecting is left to the
// command.
func (opts *options) clientConfig() (realtime.Config, error) {
	encoding, err := wire.ParseEncoding(opts.encoding)
	if err != nil {
		return realtime.Config{}, err
	}

	config := realtime.DefaultConfig()
	config.URL = opts.url
	config.Project = opts.project
	config.Encoding = encoding
	config.ClientID = opts.clientID
	config.LogLevel = realtime.ParseLogLevel(opts.logLevel)
	config.AutoConnect = false
	if opts.socket == "coder" {
		config.SocketFactory = realtime.NewCoderSocketFactory(nil)
	}
	return config, nil
}

func (opts *options) newClient() (*realtime.Client, error) {
	config, err := opts.clientConfig()
	if err != nil {
		return nil, err
	}
	return realtime.New(config)
}

func (opts *options) newRESTClient() (*rest.Client, error) {
	return rest.New(opts.url, opts.project, rest.WithUserAgent("realtime-cli/"+realtime.Version))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
