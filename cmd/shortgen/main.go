// Command shortgen drives the generation pipeline from the command line: create
// a job and advance it in-process, run or rerun one stage, store user overrides,
// inspect jobs, or hand work to the worker queue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"video-pipeline/internal/app"
	"video-pipeline/internal/config"
	"video-pipeline/internal/logging"
	"video-pipeline/internal/queue"
	"video-pipeline/internal/store"
	"video-pipeline/internal/types"
)

const usage = `usage: shortgen <command> [flags]

commands:
  create            create a job and advance it (or enqueue it with -enqueue)
  advance           run every missing stage of a job
  run               run one stage if its output is missing
  rerun             regenerate one stage and clear everything after it
  override-script   store a hand-written script (-file, or stdin)
  override-keywords store clip timings from a JSON file
  override-clips    store a clip list from a JSON file
  show              print a job as JSON
  list              list a user's jobs
  delete            delete a job and its media
  enqueue           queue a stage request for the worker`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "shortgen:", err)
		var pe *types.PreconditionError
		if errors.As(err, &pe) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

type options struct {
	fs      *flag.FlagSet
	config  *string
	id      *string
	user    *string
	stage   *string
	file    *string
	prompt  *string
	lang    *string
	voice   *string
	aspect  *string
	manual  *bool
	enqueue *bool
	rerun   *bool
	limit   *int
	offset  *int
}

func parse(cmd string, args []string) (*options, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	o := &options{
		fs:      fs,
		config:  fs.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml"),
		id:      fs.String("id", "", "job id"),
		user:    fs.String("user", "cli", "owner user id"),
		stage:   fs.String("stage", "", "stage name: "+stageNames()),
		file:    fs.String("file", "", "input file for overrides"),
		prompt:  fs.String("prompt", "", "topic prompt"),
		lang:    fs.String("lang", "en", "narration language tag"),
		voice:   fs.String("voice", "default", "narration voice"),
		aspect:  fs.String("aspect", "9:16", "aspect ratio, W:H or decimal"),
		manual:  fs.Bool("manual", false, "script will be supplied with override-script"),
		enqueue: fs.Bool("enqueue", false, "queue the job for the worker instead of running it here"),
		rerun:   fs.Bool("rerun", false, "with enqueue: rerun the stage"),
		limit:   fs.Int("limit", 20, "list page size"),
		offset:  fs.Int("offset", 0, "list offset"),
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

func stageNames() string {
	names := make([]string, len(types.Stages))
	for i, s := range types.Stages {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func (o *options) requireID() error {
	if *o.id == "" {
		return errors.New("-id is required")
	}
	return nil
}

func (o *options) requireStage() (types.Stage, error) {
	st, ok := types.ParseStage(*o.stage)
	if !ok {
		return "", fmt.Errorf("-stage must be one of %s", stageNames())
	}
	return st, nil
}

func run(ctx context.Context, cmd string, args []string) error {
	o, err := parse(cmd, args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(*o.config)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log, cfg.Paths.Logs)

	if cmd == "enqueue" {
		return enqueue(ctx, cfg, o)
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	eng := a.Engine

	var job *types.Job
	switch cmd {
	case "create":
		mode := types.ScriptModeGenerate
		if *o.manual {
			mode = types.ScriptModeManual
		}
		job, err = eng.Create(ctx, *o.user, types.InitialParams{
			Prompt:      *o.prompt,
			Language:    *o.lang,
			Voice:       *o.voice,
			AspectRatio: *o.aspect,
			ScriptMode:  mode,
		})
		if err != nil {
			return err
		}
		switch {
		case *o.enqueue:
			*o.id = job.ID
			if err := enqueue(ctx, cfg, o); err != nil {
				return err
			}
		case !*o.manual:
			job, err = eng.Advance(ctx, job.ID)
		}
	case "advance":
		if err = o.requireID(); err == nil {
			job, err = eng.Advance(ctx, *o.id)
		}
	case "run", "rerun":
		if err = o.requireID(); err != nil {
			break
		}
		var st types.Stage
		if st, err = o.requireStage(); err != nil {
			break
		}
		if cmd == "run" {
			job, err = eng.RunStage(ctx, *o.id, st)
		} else {
			job, err = eng.Rerun(ctx, *o.id, st)
		}
	case "override-script":
		if err = o.requireID(); err != nil {
			break
		}
		var text []byte
		if text, err = readInput(*o.file); err == nil {
			job, err = eng.OverrideScript(ctx, *o.id, string(text))
		}
	case "override-keywords":
		if err = o.requireID(); err != nil {
			break
		}
		var timings []types.ClipTiming
		if err = readJSON(*o.file, &timings); err == nil {
			job, err = eng.OverrideKeywords(ctx, *o.id, timings)
		}
	case "override-clips":
		if err = o.requireID(); err != nil {
			break
		}
		var clips []types.ClipRef
		if err = readJSON(*o.file, &clips); err == nil {
			job, err = eng.OverrideClips(ctx, *o.id, clips)
		}
	case "show":
		if err = o.requireID(); err == nil {
			job, err = eng.Get(ctx, *o.id)
		}
	case "list":
		var jobs []*types.Job
		jobs, err = eng.List(ctx, *o.user, store.Page{Limit: *o.limit, Offset: *o.offset})
		if err != nil {
			return err
		}
		for _, j := range jobs {
			fmt.Printf("%s\t%s\t%s\t%s\n", j.ID, j.Status, j.UpdatedAt.Format("2006-01-02 15:04"), j.InitialParams.Prompt)
		}
		return nil
	case "delete":
		if err = o.requireID(); err == nil {
			err = eng.Delete(ctx, *o.id)
		}
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	if job != nil {
		if perr := printJSON(job); perr != nil {
			log.Warn().Err(perr).Msg("print job")
		}
	}
	return err
}

func enqueue(ctx context.Context, cfg *config.Config, o *options) error {
	if err := o.requireID(); err != nil {
		return err
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Queue.Addr})
	defer rdb.Close()
	m := queue.Message{JobID: *o.id, Stage: types.Stage(*o.stage), Rerun: *o.rerun}
	if err := queue.NewRedis(rdb, cfg.Queue.QueueKey, cfg.Queue.ProcessingKey).Enqueue(ctx, m); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "queued %s\n", m.JobID)
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readJSON(path string, v any) error {
	data, err := readInput(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
