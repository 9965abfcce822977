package main

import (
	"context"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/fullstorydev/quicksync/config"
	"github.com/fullstorydev/quicksync/database"
	"github.com/fullstorydev/quicksync/pipeline"
	"github.com/fullstorydev/quicksync/schema"
	"github.com/fullstorydev/quicksync/storage"
)

var conf *config.Config

// setupLogging applies the log.level property to the standard logger.
func setupLogging(props *config.Properties) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(props.String(config.PropLogLevel, "info"))
	if err != nil {
		logrus.WithError(err).Warn("bad log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func buildRegistry(log logrus.FieldLogger) (*schema.Registry, error) {
	reg := schema.NewRegistry()
	for _, e := range conf.Schema(log) {
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func dumpOptions(props *config.Properties, log logrus.FieldLogger) pipeline.Options {
	def := pipeline.DefaultOptions()
	return pipeline.Options{
		Namespace:        props.String(config.PropNamespace, def.Namespace),
		Entities:         props.StringList(config.PropEntities),
		PageSize:         int64(props.Int(config.PropPageSize, int(def.PageSize))),
		ProgressEvery:    int64(props.Int(config.PropProgressInterval, int(def.ProgressEvery))),
		CompressionLevel: props.Int(config.PropCompressionLevel, def.CompressionLevel),
		ReadOnly:         props.Bool(config.PropReadOnly, def.ReadOnly),
		Log:              log,
	}
}

// run loads the config, dumps every entity to output and ships the file if a
// storage provider is configured.
func run(ctx context.Context, confFile, output string) error {
	var err error
	if conf, err = config.Load(confFile); err != nil {
		return err
	}
	log := logrus.StandardLogger()
	props := conf.Props(log)
	setupLogging(props)
	log.WithField("properties", conf.Keys()).Debug("config loaded")

	reg, err := buildRegistry(log)
	if err != nil {
		return err
	}
	store, err := storage.New(ctx, conf.Storage)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, config.DatabaseURL(props), log)
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := pipeline.New(db, reg, dumpOptions(props, log)).RunFile(ctx, output)
	if err != nil {
		return errors.Wrapf(err, "dump to %s", output)
	}
	log.Infof("Dumped %s rows from %d tables in %s", humanize.Comma(summary.Rows()), len(summary.Tables),
		summary.Elapsed.Round(time.Millisecond))

	if store == nil {
		return nil
	}
	where, err := storage.Ship(ctx, store, output)
	if err != nil {
		return err
	}
	log.Infof("Dump stored at %s", where)
	return nil
}

func main() {
	app := kingpin.New("quicksync", "Dump entity tables into a compressed snapshot stream.")
	confFile := app.Flag("config", "configuration file").Short('c').Default("quicksync.toml").String()
	output := app.Arg("output", "dump file to write").Required().String()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if err := run(context.Background(), *confFile, *output); err != nil {
		logrus.WithError(err).Fatal("Error")
	}
}
