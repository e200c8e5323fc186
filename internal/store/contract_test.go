package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"personachat/backend/internal/profile"
)

type storeFactory func(t *testing.T) Store

func runStoreContract(t *testing.T, newStore storeFactory) {
	t.Run("ChatLifecycle", func(t *testing.T) { testChatLifecycle(t, newStore(t)) })
	t.Run("RecentMessagesWindow", func(t *testing.T) { testRecentMessagesWindow(t, newStore(t)) })
	t.Run("CommitTurn", func(t *testing.T) { testCommitTurn(t, newStore(t)) })
	t.Run("CommitTurnBelowFloor", func(t *testing.T) { testCommitTurnBelowFloor(t, newStore(t)) })
	t.Run("TitleOnlyReplacesDefault", func(t *testing.T) { testTitleOnlyReplacesDefault(t, newStore(t)) })
	t.Run("ProfileUpdatesSerialize", func(t *testing.T) { testProfileUpdatesSerialize(t, newStore(t)) })
}

func seedStoreUser(t *testing.T, s Store, balance float64) User {
	t.Helper()
	user, err := s.CreateUser(context.Background(), User{Email: "someone@example.com", Name: "Someone", Balance: balance})
	require.NoError(t, err)
	return user
}

func testChatLifecycle(t *testing.T, s Store) {
	ctx := context.Background()
	user := seedStoreUser(t, s, 10)
	other := seedStoreUser(t, s, 10)

	chat, err := s.CreateChat(ctx, user.ID, "  ", []string{"work", "Work", " ideas "})
	require.NoError(t, err)
	require.Equal(t, DefaultChatTitle, chat.Title)
	require.Equal(t, []string{"work", "ideas"}, chat.Tags)

	_, err = s.GetChat(ctx, other.ID, chat.ID)
	require.ErrorIs(t, err, ErrNotFound)

	fav := true
	title := "Plans"
	updated, err := s.UpdateChat(ctx, user.ID, chat.ID, ChatUpdate{Title: &title, IsFavorite: &fav})
	require.NoError(t, err)
	require.Equal(t, "Plans", updated.Title)
	require.True(t, updated.IsFavorite)
	require.Equal(t, []string{"work", "ideas"}, updated.Tags)

	_, err = s.CreateChat(ctx, user.ID, "Second", nil)
	require.NoError(t, err)

	favorites, err := s.ListChats(ctx, user.ID, ChatFilter{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, favorites, 1)

	tagged, err := s.ListChats(ctx, user.ID, ChatFilter{Tag: "IDEAS"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)

	require.NoError(t, s.DeleteChat(ctx, user.ID, chat.ID, false))
	_, err = s.GetChat(ctx, user.ID, chat.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteChat(ctx, user.ID, chat.ID, false), ErrNotFound)

	all, err := s.ListChats(ctx, user.ID, ChatFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, s.DeleteChat(ctx, user.ID, chat.ID, true))
	require.ErrorIs(t, s.DeleteChat(ctx, user.ID, chat.ID, true), ErrNotFound)
}

func testRecentMessagesWindow(t *testing.T, s Store) {
	ctx := context.Background()
	user := seedStoreUser(t, s, 10)
	chat, err := s.CreateChat(ctx, user.ID, "", nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := s.InsertMessage(ctx, Message{ChatID: chat.ID, Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	recent, err := s.RecentMessages(ctx, chat.ID, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "m2", recent[0].Content)
	require.Equal(t, "m4", recent[2].Content)

	all, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, "m0", all[0].Content)

	_, err = s.InsertMessage(ctx, Message{ChatID: "missing", Role: RoleUser, Content: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func testCommitTurn(t *testing.T, s Store) {
	ctx := context.Background()
	user := seedStoreUser(t, s, 1)
	chat, err := s.CreateChat(ctx, user.ID, "", nil)
	require.NoError(t, err)

	result, err := s.CommitTurn(ctx, TurnCommit{
		UserID:     user.ID,
		ChatID:     chat.ID,
		MinBalance: 0.01,
		Title:      "Hello there",
		Assistant: Message{
			Content:      "Hello",
			Model:        "openai/gpt-4o",
			TokensInput:  12,
			TokensOutput: 2,
			Cost:         0.0081,
		},
	})
	require.NoError(t, err)
	require.InDelta(t, 0.9919, result.BalanceAfter, 1e-9)
	require.Equal(t, RoleAssistant, result.Message.Role)
	require.NotEmpty(t, result.Message.ID)

	reloaded, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.9919, reloaded.Balance, 1e-9)

	gotChat, err := s.GetChat(ctx, user.ID, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "Hello there", gotChat.Title)

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "openai/gpt-4o", msgs[0].Model)
	require.Equal(t, 12, msgs[0].TokensInput)

	txns, err := s.ListTransactions(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	require.Equal(t, TransactionUsage, txns[0].Type)
	require.InDelta(t, -0.0081, txns[0].Amount, 1e-9)
	require.Equal(t, result.Message.ID, txns[0].MessageID)
}

func testCommitTurnBelowFloor(t *testing.T, s Store) {
	ctx := context.Background()
	user := seedStoreUser(t, s, 0)
	chat, err := s.CreateChat(ctx, user.ID, "", nil)
	require.NoError(t, err)

	_, err = s.CommitTurn(ctx, TurnCommit{
		UserID:     user.ID,
		ChatID:     chat.ID,
		MinBalance: 0.01,
		Assistant:  Message{Content: "Hello", Cost: 0.5},
	})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	msgs, err := s.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)

	reloaded, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Zero(t, reloaded.Balance)
}

func testTitleOnlyReplacesDefault(t *testing.T, s Store) {
	ctx := context.Background()
	user := seedStoreUser(t, s, 5)
	chat, err := s.CreateChat(ctx, user.ID, "Named by user", nil)
	require.NoError(t, err)

	_, err = s.CommitTurn(ctx, TurnCommit{
		UserID:    user.ID,
		ChatID:    chat.ID,
		Title:     "Derived",
		Assistant: Message{Content: "ok"},
	})
	require.NoError(t, err)

	gotChat, err := s.GetChat(ctx, user.ID, chat.ID)
	require.NoError(t, err)
	require.Equal(t, "Named by user", gotChat.Title)
}

func testProfileUpdatesSerialize(t *testing.T, s Store) {
	ctx := context.Background()
	user := seedStoreUser(t, s, 0)

	empty, err := s.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, empty.IsEmpty())

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpdateProfile(ctx, user.ID, func(current profile.Profile) (profile.Profile, error) {
				return profile.Merge(current, profile.Profile{profile.Interests: {fmt.Sprintf("topic %d", i)}}, profile.DefaultCaps()), nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, got.Get(profile.Interests), writers)

	boom := errors.New("abort")
	_, err = s.UpdateProfile(ctx, user.ID, func(profile.Profile) (profile.Profile, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	again, err := s.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, again.Get(profile.Interests), writers)

	_, err = s.GetProfile(ctx, "missing-user")
	require.ErrorIs(t, err, ErrNotFound)
}
