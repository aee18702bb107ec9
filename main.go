package main

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/hauke96/sigolo/v2"
	"github.com/jonboulle/clockwork"
	"os"
	"osm4cities/area"
	"osm4cities/config"
	"osm4cities/dataset"
	ownIo "osm4cities/io"
	"osm4cities/mail"
	"osm4cities/overpass"
	"osm4cities/refresh"
	"osm4cities/report"
	"osm4cities/storage"
	"osm4cities/web"
	"strings"
)

const VERSION = "v0.1.0"

var cli struct {
	Logging string        `help:"Logging verbosity." enum:"info,debug,trace" short:"l" default:"info"`
	Version VersionFlag   `help:"Print version information and quit" name:"version" short:"v"`
	Config  config.Config `embed:""`

	Serve struct {
		Port string `help:"The port of the HTTP server." short:"p" default:"8080" env:"PORT"`
	} `cmd:"" help:"Starts the HTTP server with the task and dataset endpoints."`
	UpdateDatasets struct {
		Limit int `help:"Maximum number of datasets to refresh. Defaults to the configured update limit." placeholder:"<n>"`
	} `cmd:"" help:"Refreshes the datasets which are due."`
	SendReport struct {
	} `cmd:"" help:"Sends the report to the next user who is due."`
	Refresh struct {
		DatasetId string `help:"The ID of the dataset." placeholder:"<dataset-id>" arg:""`
		Output    string `help:"Writes the refreshed GeoJSON to this file." short:"o" type:"path"`
	} `cmd:"" help:"Refreshes a single dataset regardless of its last check."`
}

type VersionFlag string

func (v VersionFlag) Decode(ctx *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                         { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type application struct {
	repository *storage.Repository
	refresher  *refresh.Refresher
	scheduler  *refresh.Scheduler
	reportTask *report.Task
	datasets   *dataset.Service
}

func main() {
	err := config.LoadEnvFiles(".env")
	sigolo.FatalCheck(err)

	ctx := kong.Parse(
		&cli,
		kong.Name("osm4cities"),
		kong.Description("Keeps OSM datasets of cities up to date and reports their activity."),
		kong.Vars{
			"version": VERSION,
		},
	)

	if strings.ToLower(cli.Logging) == "debug" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_DEBUG)
	} else if strings.ToLower(cli.Logging) == "trace" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_TRACE)
	} else if strings.ToLower(cli.Logging) == "info" {
		sigolo.SetDefaultLogLevel(sigolo.LOG_INFO)
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
	} else {
		sigolo.SetDefaultFormatFunctionAll(sigolo.LogPlain)
		sigolo.Fatalf("Unknown logging level '%s'", cli.Logging)
	}

	err = cli.Config.Validate()
	sigolo.FatalCheck(err)

	app, err := initApplication(&cli.Config)
	sigolo.FatalCheck(err)

	background := context.Background()

	switch ctx.Command() {
	case "serve":
		server := web.NewServer(&cli.Config, app.scheduler, app.reportTask, app.refresher, app.repository, app.datasets, web.HeaderSessionProvider{})
		err = server.Start(cli.Serve.Port)
		sigolo.FatalCheck(err)
	case "update-datasets":
		limit := cli.UpdateDatasets.Limit
		if limit == 0 {
			limit = cli.Config.UpdateLimit
		}
		summary, err := app.scheduler.RunScheduledUpdates(background, limit)
		sigolo.FatalCheck(err)
		printJson(summary)
		if summary.Failed > 0 {
			os.Exit(1)
		}
	case "send-report":
		result, err := app.reportTask.SendNext(background)
		sigolo.FatalCheck(err)
		printJson(result)
	case "refresh <dataset-id>":
		datasetID, err := uuid.Parse(cli.Refresh.DatasetId)
		sigolo.FatalCheck(err)

		result, err := app.refresher.RefreshDataset(background, datasetID, nil)
		sigolo.FatalCheck(err)
		printJson(result)

		if cli.Refresh.Output != "" {
			refreshed, err := app.repository.FindDataset(background, datasetID)
			sigolo.FatalCheck(err)
			featureCollection, err := refreshed.FeatureCollection()
			sigolo.FatalCheck(err)
			err = ownIo.WriteFeatureCollectionFile(featureCollection, cli.Refresh.Output)
			sigolo.FatalCheck(err)
		}
	default:
		sigolo.Errorf("Unknown command '%s'", ctx.Command())
	}
}

func initApplication(cfg *config.Config) (*application, error) {
	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseDsn)
	if err != nil {
		return nil, err
	}
	err = storage.Migrate(db)
	if err != nil {
		return nil, err
	}

	clock := clockwork.NewRealClock()
	repository := storage.NewRepository(db)
	executor := overpass.NewClient(cfg.OverpassUrl, cfg.OverpassTimeout)
	refresher := refresh.NewRefresher(repository, executor, clock)

	var provider mail.Provider
	if cfg.SendgridApiKey == "" {
		sigolo.Infof("No SendGrid API key configured, mails are only logged")
		provider = mail.NewMockProvider()
	} else {
		provider = mail.NewSendGridProvider(cfg.SendgridApiKey, cfg.MailFrom, cfg.MailFromName)
	}
	sender := mail.NewSender(provider, mail.DefaultAttempts, mail.DefaultRetryDelay)

	return &application{
		repository: repository,
		refresher:  refresher,
		scheduler:  refresh.NewScheduler(repository, refresher, clock, cfg.UpdateConcurrency, cfg.StaleAfter),
		reportTask: report.NewTask(report.NewGenerator(repository, clock, cfg.BaseUrl), sender, repository, clock),
		datasets:   dataset.NewService(repository, area.NewClient(cfg.NominatimUrl, cfg.AreaCacheTtl), clock),
	}, nil
}

func printJson(value any) {
	output, err := json.MarshalIndent(value, "", "  ")
	sigolo.FatalCheck(err)
	fmt.Println(string(output))
}
