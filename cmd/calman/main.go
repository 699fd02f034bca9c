package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"

	"calman/internal/auth"
	"calman/internal/calendar"
	"calman/internal/config"
	"calman/internal/eventstore"
	"calman/internal/eventstore/caldav"
	"calman/internal/eventstore/google"
	"calman/internal/keyword"
)

func printHelp() {
	fmt.Fprintf(os.Stderr, `Calendar Manager

A small calendar front end over a pluggable event store (Google Calendar,
CalDAV, or an in-memory demo store). It asks for calendar access once, lists
calendars, queries events by day, month or explicit range, and creates events.

USAGE:
    %s [OPTIONS] [COMMAND]

COMMANDS (pick one):
    -list                         List the available calendars
    -day DATE                     List events on DATE (format: 2006-01-02)
    -month DATE                   List events in DATE's month (format: 2006-01)
    -from TIME -to TIME           List events in an explicit range
    -add TITLE -start TIME [-end TIME]
                                  Create an event; without -end the event
                                  lasts two hours
    -keywords                     Score the words in recent event titles

OPTIONS:
    -h, --help                    Show this help message and exit
    --config FILE                 Path to JSON config file (optional)
    --usage-description TEXT      Justification shown when requesting calendar
                                  access; required before any prompt
                                  (overrides config file and
                                  CALENDARS_USAGE_DESCRIPTION env var)
    --backend NAME                Event store backend: memory, google or
                                  caldav (default: memory)
    --google-credentials-path PATH Path to Google OAuth credentials JSON file
    --google-token-path PATH      Path to store the Google OAuth token
    --caldav-server-url URL       CalDAV server URL (e.g. https://caldav.icloud.com)
    --caldav-username USER        CalDAV username
    --caldav-password PASS        CalDAV password (app-specific password for iCloud)

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables
    3. Config file (--config)
    4. Defaults

    A .env file in the working directory is loaded into the environment
    before the precedence rules apply.

TIME FORMATS:
    Dates:      2006-01-02
    Timestamps: 2006-01-02T15:04:05 (local) or RFC 3339

EXAMPLES:
    # List calendars from the demo store
    %s -list

    # Today's events from Google Calendar
    %s --backend google --config config.json -day 2024-03-01

    # Create a two-hour meeting
    %s -add "Meeting" -start 2024-03-01T10:00:00
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	help := flag.Bool("h", false, "Show help")
	helpLong := flag.Bool("help", false, "Show help")

	configFile := flag.String("config", "", "Path to JSON config file")
	usageDescription := flag.String("usage-description", "", "Justification shown when requesting calendar access")
	backend := flag.String("backend", "", "Event store backend: memory, google or caldav")
	googleCredentialsPath := flag.String("google-credentials-path", "", "Path to Google OAuth credentials JSON file")
	googleTokenPath := flag.String("google-token-path", "", "Path to store the Google OAuth token")
	caldavServerURL := flag.String("caldav-server-url", "", "CalDAV server URL")
	caldavUsername := flag.String("caldav-username", "", "CalDAV username")
	caldavPassword := flag.String("caldav-password", "", "CalDAV password")

	list := flag.Bool("list", false, "List the available calendars")
	day := flag.String("day", "", "List events on this day")
	month := flag.String("month", "", "List events in this month")
	from := flag.String("from", "", "Range start")
	to := flag.String("to", "", "Range end")
	add := flag.String("add", "", "Create an event with this title")
	start := flag.String("start", "", "Event start time")
	end := flag.String("end", "", "Event end time")
	keywords := flag.Bool("keywords", false, "Score the words in recent event titles")

	flag.Usage = printHelp
	flag.Parse()

	if *help || *helpLong {
		printHelp()
		os.Exit(0)
	}

	// Optional .env bootstrap; a missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile, config.Flags{
		UsageDescription:      *usageDescription,
		Backend:               *backend,
		GoogleCredentialsPath: *googleCredentialsPath,
		GoogleTokenPath:       *googleTokenPath,
		CalDAVServerURL:       *caldavServerURL,
		CalDAVUsername:        *caldavUsername,
		CalDAVPassword:        *caldavPassword,
	})
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to build the %s backend: %v", cfg.Backend, err)
	}

	gate := calendar.NewGate(store, cfg)
	manager := calendar.NewManager(store, gate)

	granted, err := manager.Authorize(ctx)
	if err != nil {
		log.Fatalf("Authorization failed: %v", err)
	}
	if !granted {
		fmt.Println("Calendar access was not granted; nothing to show.")
		os.Exit(0)
	}

	switch {
	case *list:
		runList(ctx, manager)
	case *day != "":
		runRange(ctx, manager, mustParseDayRange(*day))
	case *month != "":
		runRange(ctx, manager, mustParseMonthRange(*month))
	case *from != "" && *to != "":
		runRange(ctx, manager, eventstore.NewRange(mustParseTime(*from), mustParseTime(*to)))
	case *add != "":
		runAdd(ctx, manager, *add, *start, *end)
	case *keywords:
		runKeywords(ctx, manager)
	default:
		printHelp()
		os.Exit(2)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (eventstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return eventstore.NewMemoryStore(true,
			eventstore.Calendar{ID: "personal", Title: "Personal", SourceTitle: "Demo", Writable: true},
			eventstore.Calendar{ID: "work", Title: "Work", SourceTitle: "Demo", Writable: true},
		), nil

	case config.BackendGoogle:
		clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
		if err != nil {
			return nil, err
		}
		flow := &auth.Flow{
			Config: &oauth2.Config{
				ClientID:     clientID,
				ClientSecret: clientSecret,
				RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
				Scopes:       []string{calendarapi.CalendarScope},
				Endpoint:     googleoauth.Endpoint,
			},
			Tokens: auth.NewFileTokenStore(cfg.GoogleTokenPath),
		}
		return google.New(flow), nil

	case config.BackendCalDAV:
		return caldav.New(cfg.CalDAVServerURL, cfg.CalDAVUsername, cfg.CalDAVPassword), nil
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func runList(ctx context.Context, manager *calendar.Manager) {
	calendars, err := manager.Calendars(ctx)
	if err != nil {
		log.Fatalf("Failed to list calendars: %v", err)
	}
	for _, cal := range calendars {
		access := "read-only"
		if cal.Writable {
			access = "writable"
		}
		fmt.Printf("%s\t%s (%s, %s)\n", cal.ID, cal.Title, cal.SourceTitle, access)
	}
}

func runRange(ctx context.Context, manager *calendar.Manager, r eventstore.Range) {
	calendars, err := manager.Calendars(ctx)
	if err != nil {
		log.Fatalf("Failed to list calendars: %v", err)
	}
	events, err := manager.Events(ctx, r, calendars)
	if err != nil {
		log.Fatalf("Failed to query events: %v", err)
	}
	if len(events) == 0 {
		fmt.Println("No events.")
		return
	}
	for _, ev := range events {
		if ev.AllDay {
			fmt.Printf("%s\tall day\t%s\n", ev.Start.Format("2006-01-02"), ev.Title)
			continue
		}
		fmt.Printf("%s - %s\t%s\n", ev.Start.Format("2006-01-02 15:04"), ev.End.Format("15:04"), ev.Title)
	}
}

func runAdd(ctx context.Context, manager *calendar.Manager, title, startArg, endArg string) {
	if startArg == "" {
		log.Fatal("-add requires -start")
	}
	startTime := mustParseTime(startArg)
	var endTime time.Time
	if endArg != "" {
		endTime = mustParseTime(endArg)
	}

	created, err := manager.AddEvent(ctx, title, startTime, endTime)
	if err != nil {
		log.Fatalf("Failed to add event: %v", err)
	}
	fmt.Printf("Created %q from %s to %s on calendar %s\n",
		created.Title,
		created.Start.Format("2006-01-02 15:04"),
		created.End.Format("2006-01-02 15:04"),
		created.CalendarID)
}

func runKeywords(ctx context.Context, manager *calendar.Manager) {
	extractor := keyword.NewExtractor(manager)
	scores, err := extractor.Keywords(ctx)
	if err != nil {
		log.Fatalf("Failed to extract keywords: %v", err)
	}
	if len(scores) == 0 {
		fmt.Println("No keywords.")
		return
	}
	for token, score := range scores {
		fmt.Printf("%.2f\t%s\n", score, token)
	}
}

func mustParseDayRange(value string) eventstore.Range {
	day, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		log.Fatalf("Invalid day %q (expected 2006-01-02): %v", value, err)
	}
	return calendar.DayRange(day)
}

func mustParseMonthRange(value string) eventstore.Range {
	month, err := time.ParseInLocation("2006-01", value, time.Local)
	if err != nil {
		log.Fatalf("Invalid month %q (expected 2006-01): %v", value, err)
	}
	return calendar.MonthRange(month)
}

func mustParseTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t
		}
	}
	log.Fatalf("Invalid time %q (expected RFC 3339 or 2006-01-02T15:04:05)", value)
	return time.Time{}
}
