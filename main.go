package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/williamokano/s3backend/pkg/config"
	"github.com/williamokano/s3backend/pkg/hlc"
	"github.com/williamokano/s3backend/pkg/keyexpr"
	"github.com/williamokano/s3backend/pkg/logger"
	"github.com/williamokano/s3backend/pkg/storage"
	_ "github.com/williamokano/s3backend/pkg/storage/b2"
	_ "github.com/williamokano/s3backend/pkg/storage/fs"
	_ "github.com/williamokano/s3backend/pkg/storage/s3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const usage = `usage: s3backend <config.json> <storage> <command> [args]

commands:
  put <key> <value> [encoding]
  get <key>
  delete <key>
  load <mutations.json>
  list
  status`

var errUsage = errors.New(usage)

func main() {
	// Initialize logger with default settings until the config is read
	logger.Init("info", "json")
	log := logger.Get()

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("s3backend failed")
	}
}

// session is one command run against one storage
type session struct {
	cfg     *config.Config
	factory *storage.Factory
	storage storage.Storage
	volume  storage.Volume
	clock   *hlc.Clock
	out     io.Writer
	log     zerolog.Logger
}

// run executes one command against the named storage
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 3 {
		return errUsage
	}
	configFile, storageName, command, rest := args[0], args[1], args[2], args[3:]

	cfg, err := config.ParseConfig(configFile)
	if err != nil {
		return err
	}
	logger.Init(cfg.GetLogLevel(), cfg.GetLogFormat())
	log := logger.Get().With().Str("storage", storageName).Logger()

	storageCfg, err := cfg.Storage(storageName)
	if err != nil {
		return err
	}
	volumeCfg, _ := cfg.Volume(storageCfg.VolumeID)

	factory := storage.NewFactory(log)
	volume, err := factory.Create(ctx, volumeCfg)
	if err != nil {
		return fmt.Errorf("failed to create volume %s: %w", volumeCfg.Name, err)
	}
	defer volume.Close()

	st, err := volume.CreateStorage(ctx, storageCfg)
	if err != nil {
		return fmt.Errorf("failed to create storage %s: %w", storageName, err)
	}
	defer func() {
		if err := st.Close(ctx); err != nil {
			log.Error().Err(err).Msg("failed to close storage")
		}
	}()

	s := &session{
		cfg:     cfg,
		factory: factory,
		storage: st,
		volume:  volume,
		clock:   hlc.NewClock(hlc.NewID()),
		out:     out,
		log:     log,
	}
	return s.execute(ctx, command, rest)
}

type valueOutput struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Encoding  string `json:"encoding,omitempty"`
	Timestamp string `json:"timestamp"`
}

type entryOutput struct {
	Key       string `json:"key"`
	Timestamp string `json:"timestamp"`
}

// mutationInput is one line of a load file. A missing timestamp is taken
// from the local clock.
type mutationInput struct {
	Op        string `json:"op"` // put or delete
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type resultOutput struct {
	Key     string `json:"key"`
	Op      string `json:"op"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *session) execute(ctx context.Context, command string, args []string) error {
	parseKey := func() (keyexpr.KeyExpr, error) {
		if len(args) < 1 {
			return "", errUsage
		}
		return keyexpr.New(args[0])
	}

	switch command {
	case "put":
		if len(args) < 2 || len(args) > 3 {
			return errUsage
		}
		key, err := parseKey()
		if err != nil {
			return err
		}
		value := storage.Value{Payload: []byte(args[1])}
		if len(args) == 3 {
			value.Encoding = args[2]
		}
		ts := s.clock.Now()
		res, err := s.storage.Put(ctx, key, value, ts)
		if err != nil {
			return err
		}
		s.log.Info().Str("key", key.String()).Str("timestamp", ts.String()).Stringer("result", res).Msg("put completed")
		return s.encode(map[string]string{"result": res.String(), "timestamp": ts.String()})

	case "get":
		key, err := parseKey()
		if err != nil {
			return err
		}
		data, err := s.storage.Get(ctx, key, "")
		if err != nil {
			return err
		}
		values := make([]valueOutput, 0, len(data))
		for _, d := range data {
			values = append(values, valueOutput{
				Key:       d.Key.String(),
				Value:     string(d.Value.Payload),
				Encoding:  d.Value.Encoding,
				Timestamp: d.Timestamp.String(),
			})
		}
		return s.encode(values)

	case "delete":
		key, err := parseKey()
		if err != nil {
			return err
		}
		ts := s.clock.Now()
		res, err := s.storage.Delete(ctx, key, ts)
		if err != nil {
			return err
		}
		s.log.Info().Str("key", key.String()).Str("timestamp", ts.String()).Stringer("result", res).Msg("delete completed")
		return s.encode(map[string]string{"result": res.String(), "timestamp": ts.String()})

	case "load":
		if len(args) != 1 {
			return errUsage
		}
		return s.load(ctx, args[0])

	case "list":
		entries, err := s.storage.GetAllEntries(ctx)
		if err != nil {
			return err
		}
		list := make([]entryOutput, 0, len(entries))
		for _, e := range entries {
			list = append(list, entryOutput{Key: e.Key.String(), Timestamp: e.Timestamp.String()})
		}
		return s.encode(list)

	case "status":
		return s.status(ctx)

	default:
		return fmt.Errorf("%w\n\nunknown command %q", errUsage, command)
	}
}

// load applies a JSON array of mutations as one batch
func (s *session) load(ctx context.Context, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to open mutations file: %w", err)
	}
	var inputs []mutationInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		return fmt.Errorf("failed to parse mutations file: %w", err)
	}

	mutations := make([]storage.Mutation, len(inputs))
	stamped := make([]bool, len(inputs))
	for i, in := range inputs {
		key, err := keyexpr.New(in.Key)
		if err != nil {
			return fmt.Errorf("mutation %d: %w", i, err)
		}
		m := storage.Mutation{Key: key, Value: storage.Value{Payload: []byte(in.Value), Encoding: in.Encoding}}
		switch in.Op {
		case "put":
			m.Kind = storage.MutationPut
		case "delete":
			m.Kind = storage.MutationDelete
		default:
			return fmt.Errorf("mutation %d: unknown op %q", i, in.Op)
		}
		if in.Timestamp != "" {
			if m.Timestamp, err = hlc.Parse(in.Timestamp); err != nil {
				return fmt.Errorf("mutation %d: %w", i, err)
			}
			s.clock.Update(m.Timestamp)
			stamped[i] = true
		}
		mutations[i] = m
	}
	// local timestamps sort after every explicit one in the file
	for i := range mutations {
		if !stamped[i] {
			mutations[i].Timestamp = s.clock.Now()
		}
	}

	results := storage.NewBatchWriter(s.log, 0).Apply(ctx, s.storage, mutations)

	out := make([]resultOutput, 0, len(results))
	failed := 0
	for _, r := range results {
		o := resultOutput{Key: r.Key.String(), Op: r.Kind.String()}
		if r.Success {
			o.Outcome = r.Outcome.String()
		} else {
			o.Error = r.Error.Error()
			failed++
		}
		out = append(out, o)
	}
	s.log.Info().Int("mutations", len(results)).Int("failed", failed).Msg("load completed")
	return s.encode(out)
}

// status reports the storage and every volume in the configuration
func (s *session) status(ctx context.Context) error {
	volumes, err := s.factory.CreateAll(ctx, s.cfg.Volumes)
	if err != nil {
		return err
	}
	defer func() {
		for _, v := range volumes {
			v.Close()
		}
	}()

	volumeStatus := make(map[string]any, len(volumes))
	for _, v := range volumes {
		volumeStatus[v.Name()] = v.AdminStatus()
	}
	return s.encode(map[string]any{
		"volume":  s.volume.AdminStatus(),
		"storage": s.storage.AdminStatus(),
		"volumes": volumeStatus,
	})
}

func (s *session) encode(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
