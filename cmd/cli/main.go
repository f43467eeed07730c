package main

import (
	"fmt"
	"log"
	"os"
	"path"

	"github.com/mossfeld/voicecast/internal/audio"
	"github.com/mossfeld/voicecast/internal/config"
	"github.com/mossfeld/voicecast/internal/datalayer"
	"github.com/mossfeld/voicecast/internal/generator"
	"github.com/mossfeld/voicecast/internal/repository"
	"github.com/mossfeld/voicecast/internal/schedule"
	"github.com/urfave/cli/v2"
)

var uuidGenerator = generator.UUIDV4Generator{}

func main() {
	if err := config.LoadEnv(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	pgCfg, err := config.NewPostgresConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load postgres config: %v", err)
	}

	app := &cli.App{
		Name:        "voicecast-cli",
		Description: "A development CLI tool for managing voicecast recordings and announcements",
		Commands: []*cli.Command{
			{
				Name:  "recording",
				Usage: "Manage uploaded voice recordings",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Upload a WAV file and register it in the catalog",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "file",
								Usage:    "Path to a PCM WAV file",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "name",
								Usage: "Recording name (defaults to the file name)",
							},
						},
						Action: func(c *cli.Context) error {
							filePath := c.String("file")
							name := c.String("name")
							if name == "" {
								name = path.Base(filePath)
							}

							f, err := os.Open(filePath)
							if err != nil {
								return cli.Exit("Failed to open file: "+err.Error(), 1)
							}
							defer f.Close()

							// Decode once so malformed files are rejected
							// before they reach storage.
							source, err := audio.DecodeWAV(f)
							if err != nil {
								return cli.Exit("Not a usable WAV file: "+err.Error(), 1)
							}

							stat, err := f.Stat()
							if err != nil {
								return cli.Exit("Failed to stat file: "+err.Error(), 1)
							}
							if _, err := f.Seek(0, 0); err != nil {
								return cli.Exit("Failed to rewind file: "+err.Error(), 1)
							}

							storage, err := datalayer.NewMinioStorageFromEnv()
							if err != nil {
								return cli.Exit("Failed to create storage: "+err.Error(), 1)
							}
							if err := storage.EnsureBucket(c.Context); err != nil {
								return cli.Exit("Failed to ensure bucket: "+err.Error(), 1)
							}

							id, _ := uuidGenerator.Next()
							objectKey := "recordings/" + id

							err = storage.Put(c.Context, objectKey, f, datalayer.PutOptions{
								Size:        stat.Size(),
								ContentType: "audio/wav",
							})
							if err != nil {
								return cli.Exit("Failed to upload: "+err.Error(), 1)
							}

							repo, err := newRepo(c, pgCfg)
							if err != nil {
								return err
							}
							rec := repository.Recording{
								ID:         id,
								Name:       name,
								ObjectKey:  objectKey,
								FileSize:   stat.Size(),
								SampleRate: source.SampleRate,
								Channels:   source.Channels,
							}
							if err := repo.SaveRecording(c.Context, rec); err != nil {
								return cli.Exit("Failed to save recording: "+err.Error(), 1)
							}

							fmt.Printf("Recording added: %s (%s, %v)\n", name, id, source.Duration())
							return nil
						},
					},
					{
						Name:  "list",
						Usage: "List all recordings",
						Action: func(c *cli.Context) error {
							repo, err := newRepo(c, pgCfg)
							if err != nil {
								return err
							}
							recordings, err := repo.ListRecordings(c.Context)
							if err != nil {
								return cli.Exit("Failed to list recordings: "+err.Error(), 1)
							}
							if len(recordings) == 0 {
								log.Println("No recordings found.")
								return nil
							}
							for _, rec := range recordings {
								log.Printf("%s  %s  %d bytes  %d Hz x%d", rec.ID, rec.Name, rec.FileSize, rec.SampleRate, rec.Channels)
							}
							return nil
						},
					},
				},
			},
			{
				Name:  "announce",
				Usage: "Manage scheduled announcements",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Schedule recurring casts of a recording",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "recording-id",
								Usage:    "ID of the recording to cast",
								Required: true,
							},
							&cli.StringFlag{
								Name:     "cron",
								Usage:    "Cron expression (e.g. '0 9 * * 1')",
								Required: true,
							},
						},
						Action: func(c *cli.Context) error {
							cron := c.String("cron")
							if err := schedule.ValidateCron(cron); err != nil {
								return cli.Exit(err.Error(), 1)
							}

							repo, err := newRepo(c, pgCfg)
							if err != nil {
								return err
							}

							id, _ := uuidGenerator.Next()
							a := repository.Announcement{
								ID:          id,
								RecordingID: c.String("recording-id"),
								Cron:        cron,
							}
							if err := repo.SaveAnnouncement(c.Context, a); err != nil {
								return cli.Exit("Failed to save announcement: "+err.Error(), 1)
							}
							log.Println("Announcement added:", id)
							return nil
						},
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}

func newRepo(c *cli.Context, pgCfg *config.PostgresConfig) (*repository.PostgresRepository, error) {
	pool, err := datalayer.NewPostgresPool(c.Context, pgCfg.DSN())
	if err != nil {
		return nil, cli.Exit("Failed to create postgres pool: "+err.Error(), 1)
	}
	if err := datalayer.MigratePostgres(pool); err != nil {
		return nil, cli.Exit("Failed to migrate postgres: "+err.Error(), 1)
	}
	return repository.NewPostgresRepository(pool), nil
}
