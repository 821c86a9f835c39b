package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forge-games/contribot/internal/config"
	"github.com/forge-games/contribot/internal/gemini"
	"github.com/forge-games/contribot/internal/github"
	"github.com/forge-games/contribot/internal/models"
	"github.com/forge-games/contribot/internal/points"
	"github.com/forge-games/contribot/internal/reconciler"
	"github.com/forge-games/contribot/internal/storage"
	"gopkg.in/telebot.v4"
)

// Bot wires the chat commands to the store, the activity accessor and
// the generators. It also owns the active repository pointer: all
// activity queries are scoped to whichever repository is currently
// set, and switching it neither migrates nor resets existing records.
type Bot struct {
	config   *config.Config
	storage  *storage.Storage
	github   *github.Client
	gemini   *gemini.Client
	bot      telebot.API
	shutdown func()

	reconciler *reconciler.Reconciler

	repoMu sync.Mutex
	repo   *github.Repo
}

func New(cfg *config.Config, store *storage.Storage, gh *github.Client, gem *gemini.Client, tb telebot.API, shutdown func()) *Bot {
	return &Bot{
		config:   cfg,
		storage:  store,
		github:   gh,
		gemini:   gem,
		bot:      tb,
		shutdown: shutdown,
	}
}

// SetReconciler attaches the loop after construction; the reconciler
// itself is built around ActiveRepo, so the two reference each other.
func (b *Bot) SetReconciler(r *reconciler.Reconciler) {
	b.reconciler = r
}

// ActiveRepo returns the currently active repository, or nil.
func (b *Bot) ActiveRepo() *github.Repo {
	b.repoMu.Lock()
	defer b.repoMu.Unlock()
	return b.repo
}

func (b *Bot) setActiveRepo(repo *github.Repo) {
	b.repoMu.Lock()
	defer b.repoMu.Unlock()
	b.repo = repo
}

// Register installs all command handlers on the bot.
func (b *Bot) Register(tb *telebot.Bot) {
	tb.Handle("/setrepo", b.wrap(b.HandleSetRepo))
	tb.Handle("/link", b.wrap(b.HandleLink))
	tb.Handle("/challenge", b.wrap(b.HandleChallenge))
	tb.Handle("/leaderboard", b.wrap(b.HandleLeaderboard))
	tb.Handle("/sentiment", b.wrap(b.HandleSentiment))
	tb.Handle("/update", b.wrap(b.HandleUpdate))
	tb.Handle("/shutdown", b.wrap(b.HandleShutdown))
}

// wrap builds a telebot handler that carries a deadline and reports
// handler failures back to the chat instead of propagating them.
func (b *Bot) wrap(h func(*UpdateContext) error) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), b.config.BotHandleTimeout)
		defer cancel()

		uc := NewUpdateContext(ctx, c)
		if err := h(uc); err != nil {
			uc.L().Errorf("handler failed: %v", err)
			return c.Send(fmt.Sprintf("Error: %v", err))
		}
		return nil
	}
}

func (b *Bot) HandleSetRepo(uc *UpdateContext) error {
	name := strings.Trim(uc.Message().Payload, " .")
	if name == "" {
		return uc.TC().Send("Usage: /setrepo owner/name")
	}

	repo, err := b.github.Resolve(uc, name)
	if errors.Is(err, github.ErrRepoNotFound) {
		return uc.TC().Send(fmt.Sprintf("Repository %s not found. Check if the repo exists and spelling is correct.", name))
	}
	if err != nil {
		return fmt.Errorf("resolving repository: %w", err)
	}

	b.setActiveRepo(repo)
	uc.L().Infof("set repository to %s", repo.FullName())
	return uc.TC().Send(fmt.Sprintf("Repository set to %s.", repo.FullName()))
}

func (b *Bot) HandleLink(uc *UpdateContext) error {
	handle := strings.TrimSpace(uc.Message().Payload)
	if handle == "" {
		return uc.TC().Send("Usage: /link github-username")
	}

	user, activity, err := b.LinkUser(uc, uc.Sender().ID, handle)
	if errors.Is(err, ErrAlreadyLinked) {
		return uc.TC().Send("You are already linked!")
	}
	if errors.Is(err, ErrNoActiveRepo) {
		return uc.TC().Send("Please set the repository first with /setrepo.")
	}
	if err != nil {
		return err
	}

	uc.L().Infof("linked %s", user)
	return uc.TC().Send(fmt.Sprintf(
		"✅ Linked @%s! %d points awarded for %dc/%di/%dp!",
		handle, user.Points, activity.Commits, activity.Issues, activity.PullRequests,
	))
}

var (
	ErrAlreadyLinked = errors.New("already linked")
	ErrNoActiveRepo  = errors.New("no active repository")
)

// LinkUser links a chat identity to a contributor handle and awards
// the one-time full-history points. Re-linking the same handle is
// rejected; linking a different handle resets the record so points
// are never the sum of two identities' histories.
func (b *Bot) LinkUser(ctx context.Context, chatID int64, handle string) (*models.User, github.Activity, error) {
	repo := b.ActiveRepo()
	if repo == nil {
		return nil, github.Activity{}, ErrNoActiveRepo
	}

	if existing, err := b.storage.GetUser(ctx, chatID); err == nil && existing.GithubUser == handle {
		return nil, github.Activity{}, ErrAlreadyLinked
	}

	activity, err := b.github.TotalActivity(ctx, repo, handle)
	if err != nil {
		return nil, github.Activity{}, fmt.Errorf("fetching total activity: %w", err)
	}

	user := &models.User{
		ChatID:            chatID,
		GithubUser:        handle,
		Points:            points.Compute(activity.Commits, activity.Issues, activity.PullRequests),
		LastActivityCheck: time.Now().UTC(),
	}
	points.ApplyBadges(user)

	if err := b.storage.SaveUser(ctx, user); err != nil {
		return nil, github.Activity{}, err
	}
	return user, activity, nil
}

func (b *Bot) HandleChallenge(uc *UpdateContext) error {
	repo := b.ActiveRepo()
	if repo == nil {
		return uc.TC().Send("Please set the repository and link your GitHub account first.")
	}

	user, err := b.storage.GetUser(uc, uc.Sender().ID)
	if err != nil {
		return uc.TC().Send("Please set the repository and link your GitHub account first.")
	}

	activity, err := b.github.TotalActivity(uc, repo, user.GithubUser)
	if err != nil {
		return fmt.Errorf("fetching activity: %w", err)
	}

	challenge, err := b.gemini.Challenge(uc, activity.Summary())
	if err != nil {
		return fmt.Errorf("generating challenge: %w", err)
	}

	user.CurrentChallenge = challenge
	if err := b.storage.SaveUser(uc, user); err != nil {
		return err
	}

	uc.L().Infof("generated challenge for @%s", user.GithubUser)
	return uc.TC().Send(fmt.Sprintf("Your personalized challenge: %s", challenge))
}

// LeaderboardEntry is one row of the top-10 board.
type LeaderboardEntry struct {
	DisplayName string
	GithubUser  string
	Points      int
	Badges      []string
	Activity    string
}

func (b *Bot) HandleLeaderboard(uc *UpdateContext) error {
	// Fold fresh activity in before reading; if a pass is already in
	// flight this is a no-op and the board reads current state.
	if err := b.reconciler.RunOnce(uc); err != nil {
		uc.L().Errorf("pre-leaderboard pass failed: %v", err)
	}

	entries, err := b.Leaderboard(uc)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return uc.TC().Send("Nobody is linked yet. Use /link to join the board.")
	}

	var sb strings.Builder
	sb.WriteString("Leaderboard\n")
	for i, e := range entries {
		badges := strings.Join(e.Badges, ", ")
		if badges == "" {
			badges = "None"
		}
		fmt.Fprintf(&sb, "%d. %s (@%s) - %d pts | %s\n%s\n\n",
			i+1, e.DisplayName, e.GithubUser, e.Points, badges, e.Activity)
	}
	return uc.TC().Send(sb.String())
}

// Leaderboard returns the top 10 users by points descending with a
// best-effort display name and all-time activity summary per entry.
func (b *Bot) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	users, err := b.storage.TopUsers(ctx, 10)
	if err != nil {
		return nil, err
	}

	repo := b.ActiveRepo()

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, user := range users {
		entry := LeaderboardEntry{
			DisplayName: b.displayName(user),
			GithubUser:  user.GithubUser,
			Points:      user.Points,
			Badges:      user.Badges,
		}
		if repo != nil {
			if activity, err := b.github.TotalActivity(ctx, repo, user.GithubUser); err == nil {
				entry.Activity = activity.Summary()
			} else {
				entry.Activity = fmt.Sprintf("Error fetching activity: %v", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (b *Bot) displayName(user *models.User) string {
	chat, err := b.bot.ChatByID(user.ChatID)
	if err != nil || chat == nil {
		return user.GithubUser
	}
	switch {
	case chat.FirstName != "" || chat.LastName != "":
		return strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	case chat.Username != "":
		return chat.Username
	default:
		return user.GithubUser
	}
}

func (b *Bot) HandleSentiment(uc *UpdateContext) error {
	reply := uc.Message().ReplyTo
	if reply == nil || reply.Text == "" {
		return uc.TC().Send("Reply to a message with /sentiment to analyze it.")
	}

	sentiment, err := b.gemini.Sentiment(uc, reply.Text)
	if err != nil {
		return fmt.Errorf("analyzing sentiment: %w", err)
	}

	uc.L().Infof("sentiment analysis for message %d", reply.ID)
	return uc.TC().Send(fmt.Sprintf("Sentiment analysis: %s", sentiment))
}

func (b *Bot) HandleUpdate(uc *UpdateContext) error {
	b.reconciler.Trigger()
	uc.L().Info("manual stats update requested")
	if last := b.reconciler.LastPass(); !last.IsZero() {
		return uc.TC().Send(fmt.Sprintf("Stats update scheduled. Last pass: %s.", last.Format(time.RFC3339)))
	}
	return uc.TC().Send("Stats update scheduled.")
}

func (b *Bot) HandleShutdown(uc *UpdateContext) error {
	if !b.isAdmin(uc.Sender().ID) {
		return uc.TC().Send("You are not allowed to do that.")
	}

	uc.L().Warnf("shutdown initiated by %d", uc.Sender().ID)
	if err := uc.TC().Send("Shutting down the bot..."); err != nil {
		uc.L().Errorf("sending shutdown reply: %v", err)
	}
	b.shutdown()
	return nil
}

func (b *Bot) isAdmin(chatID int64) bool {
	for _, id := range b.config.AdminChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}
