package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tay-weather-bot/alert"
	"tay-weather-bot/compose"
	"tay-weather-bot/config"
	"tay-weather-bot/cooldown"
	"tay-weather-bot/feed"
	"tay-weather-bot/gate"
	"tay-weather-bot/publisher"
	"tay-weather-bot/rssfeed"
	"tay-weather-bot/scheduler"
	"tay-weather-bot/scraper"
	"tay-weather-bot/state"
	"tay-weather-bot/telegram"
)

func main() {
	once := flag.Bool("once", false, "run a single tick and exit (for external schedulers)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	slog.Info("starting tay weather bot")

	configPath := config.GetConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	slog.Info("config loaded", "path", configPath)

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		slog.Error("failed to open state repository", "backend", cfg.StateBackend, "error", err)
		os.Exit(1)
	}
	defer closeRepo()
	slog.Info("state repository opened", "backend", cfg.StateBackend, "path", cfg.StatePath)

	tg, err := telegram.New(cfg.TelegramToken, cfg.ChatID)
	if err != nil {
		slog.Error("failed to initialize telegram client", "error", err)
		os.Exit(1)
	}

	app := newApp(cfg, repo, tg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if *once {
		if err := app.runTick(ctx); err != nil {
			slog.Error("tick failed", "error", err)
			os.Exit(1)
		}
		return
	}

	sched, err := scheduler.NewScheduler(cfg.Timezone)
	if err != nil {
		slog.Error("failed to initialize scheduler", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}
	if err := sched.ScheduleEvery(cfg.TickIntervalMin, func() {
		if err := app.runTick(ctx); err != nil {
			slog.Error("tick failed", "error", err)
		}
	}); err != nil {
		slog.Error("failed to schedule tick", "error", err)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()
	slog.Info("tick scheduled", "interval_min", cfg.TickIntervalMin, "timezone", cfg.Timezone)

	<-ctx.Done()
	slog.Info("bot stopped")
}

func openRepository(cfg *config.Config) (state.Repository, func(), error) {
	if cfg.StateBackend == "sqlite" {
		repo, err := state.NewSQLiteRepository(cfg.StatePath)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { repo.Close() }, nil
	}
	repo, err := state.NewFileRepository(cfg.StatePath)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { repo.Close() }, nil
}

// App holds all application dependencies.
type App struct {
	cfg      *config.Config
	repo     state.Repository
	tg       *telegram.Client
	feed     *feed.Client
	scraper  *scraper.Scraper
	composer *compose.Composer
	engine   *cooldown.Engine
	gate     *gate.Gate
	orch     *publisher.Orchestrator
	tickMu   sync.Mutex
}

func newApp(cfg *config.Config, repo state.Repository, tg *telegram.Client) *App {
	engine := cooldown.New(cfg, cfg.GlobalCooldownMin)

	g := gate.New(repo, tg,
		time.Duration(cfg.ApprovalTTLMin)*time.Minute,
		gate.WithAllowedUsers(cfg.AllowedUserIDs),
		gate.WithRemindLead(time.Duration(cfg.RemindBeforeMin)*time.Minute),
	)

	var platforms []publisher.Platform
	if cfg.EnableXPosting {
		platforms = append(platforms, publisher.NewXPlatform(cfg.XClientID, cfg.XClientSecret, cfg.XRefreshToken))
	}
	if cfg.EnableFBPosting {
		platforms = append(platforms, publisher.NewFacebookPlatform(cfg.FBPageID, cfg.FBPageToken))
	}

	feedClient := feed.NewClient(cfg.FeedURL,
		feed.WithTimeout(time.Duration(cfg.FetchTimeoutSecs)*time.Second),
		feed.WithRegionRewrite(cfg.ForecastRegion))

	return &App{
		cfg:      cfg,
		repo:     repo,
		tg:       tg,
		feed:     feedClient,
		scraper:  scraper.NewScraper(scraper.WithTimeout(time.Duration(cfg.FetchTimeoutSecs) * time.Second)),
		composer: compose.New(cfg.MoreInfoURL, cfg.DisplayAreaName),
		engine:   engine,
		gate:     g,
		orch:     publisher.New(platforms, engine, repo, tg),
	}
}

// runTick is one complete pass: ingest pending actions, send reminders,
// fetch the feed and walk every fresh alert through the dedupe, cooldown and
// approval gates before publishing.
func (a *App) runTick(ctx context.Context) error {
	if !a.tickMu.TryLock() {
		slog.Warn("previous tick still running, skipping")
		return nil
	}
	defer a.tickMu.Unlock()

	st, err := a.repo.Load(ctx)
	if err != nil {
		return err
	}

	if _, err := a.gate.Ingest(ctx, st); err != nil {
		slog.Warn("action ingestion failed", "error", err)
	}
	if _, err := a.gate.SendReminders(ctx, st); err != nil {
		slog.Warn("reminder pass failed", "error", err)
	}

	alerts, err := a.feed.Fetch(ctx, a.cfg.DisplayAreaName)
	if err != nil {
		// Upstream can throttle or time out; retry on the next tick.
		slog.Warn("alert feed unavailable, exiting cleanly", "error", err)
		return nil
	}

	rss, err := rssfeed.Open(a.cfg.RSSPath,
		"Tay Township Weather Statements",
		a.cfg.MoreInfoURL,
		"Automated weather statements and alerts for "+a.cfg.DisplayAreaName+".")
	if err != nil {
		return err
	}

	posted, skipped := 0, 0
	for i := range alerts {
		al := &alerts[i]

		if !rss.Has(al.GUID) {
			pubDate := al.Updated
			if pubDate.IsZero() {
				pubDate = time.Now()
			}
			rss.Add(al.Title, a.cfg.MoreInfoURL, al.GUID, a.rssDescription(al), pubDate)
		}

		// Persist the seen mark now; the reload after processAlert would
		// drop an in-memory-only write.
		if !st.HasSeen(al.GUID) {
			st.MarkSeen(al.GUID)
			if err := a.repo.Save(ctx, st); err != nil {
				return err
			}
		}

		ok, err := a.processAlert(ctx, st, al)
		if err != nil {
			slog.Warn("alert processing failed", "guid", al.GUID, "error", err)
			continue
		}
		if ok {
			posted++
		} else {
			skipped++
		}

		// The wait loop persists through the repository; pick up its view.
		st, err = a.repo.Load(ctx)
		if err != nil {
			return err
		}
	}

	if err := rss.Save(time.Now()); err != nil {
		slog.Warn("rss save failed", "error", err)
	}
	if err := a.repo.Save(ctx, st); err != nil {
		return err
	}

	slog.Info("tick complete", "alerts", len(alerts), "posted", posted, "skipped", skipped)
	return nil
}

func (a *App) processAlert(ctx context.Context, st *state.GateState, al *alert.Alert) (bool, error) {
	kind := al.Kind()
	guid := al.GUID
	groupKey := al.GroupKey()
	token := al.Token()

	remix := a.gate.RemixCountFor(st, token)
	custom := a.gate.CustomTextFor(st, token)
	texts := a.composer.PlatformTexts(al, remix, custom.X, custom.FB)

	ok, reason := a.engine.MayPublish(st, guid, groupKey, kind, texts.X)
	if !ok {
		slog.Info("publish suppressed", "guid", guid, "kind", kind, "reason", reason)
		return false, nil
	}

	policy := a.cfg.PolicyFor(kind)
	if !policy.RequireApproval {
		if delay := time.Duration(policy.AutoDelayMin) * time.Minute; delay > 0 {
			if age := time.Since(al.Updated); al.Updated.IsZero() || age < delay {
				slog.Info("auto-publish delayed", "guid", guid, "kind", kind, "delay_min", policy.AutoDelayMin)
				return false, nil
			}
		}
		return a.publish(ctx, st, al, texts)
	}

	decision := a.gate.DecisionFor(st, token)
	if decision == "" {
		preview := a.buildPreview(ctx, al, texts)

		if a.gate.IsPending(st, token) {
			if rec := st.PendingApprovals[token]; rec.PreviewText != preview {
				if err := a.gate.UpdatePreview(ctx, st, token, preview, nil); err != nil {
					slog.Warn("preview update failed", "token", token, "error", err)
				}
			}
		} else if err := a.gate.EnsurePreview(ctx, st, token, preview, kind, nil); err != nil {
			return false, err
		}

		decision = a.gate.WaitForDecision(ctx, token,
			time.Duration(a.cfg.DecisionMaxWaitSecs)*time.Second,
			time.Duration(a.cfg.PollIntervalSecs)*time.Second)
	}

	if decision != state.DecisionApproved {
		slog.Info("not approved", "guid", guid, "token", token, "decision", decision)
		return false, nil
	}

	// Pick up any remix or custom text recorded while waiting.
	st2, err := a.repo.Load(ctx)
	if err != nil {
		return false, err
	}
	*st = *st2
	remix = a.gate.RemixCountFor(st, token)
	custom = a.gate.CustomTextFor(st, token)
	texts = a.composer.PlatformTexts(al, remix, custom.X, custom.FB)

	return a.publish(ctx, st, al, texts)
}

func (a *App) publish(ctx context.Context, st *state.GateState, al *alert.Alert, texts compose.Texts) (bool, error) {
	req := publisher.Request{
		GUID:     al.GUID,
		GroupKey: al.GroupKey(),
		Texts: map[string]string{
			"x":        texts.X,
			"facebook": texts.Facebook,
		},
	}

	results, err := a.orch.Publish(ctx, st, req)
	if err != nil {
		return false, err
	}
	for _, res := range results {
		if res.OK {
			return true, nil
		}
	}
	slog.Info("no platform accepted the post, leaving eligible for retry", "guid", al.GUID)
	return false, nil
}

func (a *App) buildPreview(ctx context.Context, al *alert.Alert, texts compose.Texts) string {
	detail := ""
	if al.Link != "" {
		d, err := a.scraper.FetchDetail(ctx, al.Link)
		if err != nil {
			slog.Warn("detail scrape failed, using feed summary", "link", al.Link, "error", err)
		} else {
			detail = d
		}
	}
	return a.composer.Preview(al, detail, texts)
}

func (a *App) rssDescription(al *alert.Alert) string {
	desc := al.Title
	if al.Summary != "" {
		desc += "\n" + al.Summary
	}
	desc += "\nMore info (" + a.cfg.DisplayAreaName + "): " + a.cfg.MoreInfoURL
	if al.Link != "" {
		desc += "\nOfficial alert details: " + al.Link
	}
	return desc
}
