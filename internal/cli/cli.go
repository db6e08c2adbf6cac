package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	client "github.com/bhoriuchi/graphql-go-client"
	"github.com/bhoriuchi/graphql-go-client/auth"
	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/ws/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "GQLC"

// config is read from flags and GQLC_ prefixed environment variables
type config struct {
	URL           string
	Headers       map[string]string
	Variables     map[string]interface{}
	OperationName string
	PublicRole    string
	AccessToken   string
	Protocol      string
	LogLevel      string
	LogFormat     string
	Timeout       time.Duration
	MetricsListen string
}

// Execute initializes and runs the Cobra CLI
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "gqlc",
		Short:         "authenticated GraphQL client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()

	flags.String("url", "", "GraphQL http endpoint, subscriptions use the matching ws endpoint")
	v.BindEnv("url")

	flags.StringSlice("header", nil, "extra request header as key=value, may be repeated")
	v.BindEnv("header")

	flags.StringSlice("var", nil, "operation variable as key=value, JSON values are decoded")

	flags.String("operation-name", "", "operation to run when the document has several")

	flags.String("public-role", client.DefaultPublicRole, "role sent when no access token is set")
	v.BindEnv("public-role")
	v.SetDefault("public-role", client.DefaultPublicRole)

	flags.String("access-token", "", "JWT access token sent as a bearer token")
	v.BindEnv("access-token")

	flags.String("protocol", "graphql-ws", "websocket subprotocol (graphql-ws or graphql-transport-ws)")
	v.BindEnv("protocol")
	v.SetDefault("protocol", "graphql-ws")

	flags.String("log-level", "warn", "log level (error, warn, info, debug, trace)")
	v.BindEnv("log-level")
	v.SetDefault("log-level", "warn")

	flags.String("log-format", "json", "log format (json, text, logfmt)")
	v.BindEnv("log-format")
	v.SetDefault("log-format", "json")

	flags.Duration("timeout", 30*time.Second, "http request timeout")
	v.BindEnv("timeout")
	v.SetDefault("timeout", 30*time.Second)

	v.BindPFlags(flags)

	cmd.AddCommand(newQueryCmd(v), newSubscribeCmd(v))
	return cmd
}

func loadConfig(v *viper.Viper) (*config, error) {
	cfg := &config{
		URL:           v.GetString("url"),
		OperationName: v.GetString("operation-name"),
		PublicRole:    v.GetString("public-role"),
		AccessToken:   v.GetString("access-token"),
		Protocol:      v.GetString("protocol"),
		LogLevel:      v.GetString("log-level"),
		LogFormat:     v.GetString("log-format"),
		Timeout:       v.GetDuration("timeout"),
		MetricsListen: v.GetString("metrics-listen"),
		Headers:       map[string]string{},
		Variables:     map[string]interface{}{},
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("a GraphQL url is required (--url or %s_URL)", envPrefix)
	}

	for _, kv := range v.GetStringSlice("header") {
		key, value, err := splitPair(kv)
		if err != nil {
			return nil, err
		}
		cfg.Headers[key] = value
	}

	for _, kv := range v.GetStringSlice("var") {
		key, value, err := splitPair(kv)
		if err != nil {
			return nil, err
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		cfg.Variables[key] = decoded
	}

	return cfg, nil
}

func splitPair(kv string) (string, string, error) {
	key, value, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", kv)
	}
	return key, value, nil
}

// newLogger writes logs to the command's stderr. json and text use logrus,
// logfmt uses the plain logfmt printer.
func newLogger(cmd *cobra.Command, cfg *config) (*logger.LogWrapper, error) {
	lvl, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var logFunc logger.LogFunc
	switch cfg.LogFormat {
	case "logfmt":
		logFunc = logger.NewSimpleLogFunc(lvl, cmd.ErrOrStderr())
	case "json", "text", "":
		log := logrus.New()
		if cfg.LogFormat == "text" {
			log.SetFormatter(&logrus.TextFormatter{DisableColors: true})
		} else {
			log.SetFormatter(&logrus.JSONFormatter{})
		}
		log.SetOutput(cmd.ErrOrStderr())
		log.SetLevel(logger.LogrusLevel(lvl))
		logFunc = logger.NewLogrusLogFunc(log)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}

	return logger.NewLogWrapper(logFunc, nil), nil
}

// newClient builds a client for the configured backend. The access token, if
// any, is used to sign in so it is sent over both transports.
func newClient(cfg *config, log *logger.LogWrapper, reg prometheus.Registerer) (*client.Client, error) {
	logFunc := log.LogFunc

	provider := auth.NewClient(&auth.Options{LogFunc: logFunc})
	if cfg.AccessToken != "" {
		if err := provider.SignIn(&auth.Session{AccessToken: cfg.AccessToken}); err != nil {
			return nil, err
		}
	}

	if _, ok := transport.ProtocolByName(cfg.Protocol); !ok {
		return nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
	}

	opts := []client.Option{
		client.WithBackend(client.NewBackend(cfg.URL, provider)),
		client.WithHeaders(cfg.Headers),
		client.WithPublicRole(cfg.PublicRole),
		client.WithProtocol(cfg.Protocol),
		client.WithRequestTimeout(cfg.Timeout),
		client.WithFetchPolicy(client.NetworkOnly),
		client.WithLogFunc(logFunc),
	}
	if reg != nil {
		opts = append(opts, client.WithMetrics(reg))
	}

	return client.New(opts...)
}

// readDocument returns the document argument or reads it from stdin
func readDocument(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return args[0], nil
}

func printResult(cmd *cobra.Command, res interface{}) error {
	b, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
