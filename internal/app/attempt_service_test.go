package app_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"quiz-attempt-service/internal/domain"
)

func TestCreateOrResumeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, multiQuiz(3))

	first, err := env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if first.AttemptID != second.AttemptID || second.AttemptNumber != 1 {
		t.Fatalf("expected the same attempt, got %+v and %+v", first, second)
	}
	if second.Status != domain.AttemptInProgress || second.AttemptsLeft != 2 {
		t.Fatalf("unexpected view %+v", second)
	}
}

func TestAttemptNumbersAreSequentialAndLimited(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, multiQuiz(3))

	finalize := []func(id string) error{
		func(id string) error { _, err := env.attempts.Complete(ctx, id, nil); return err },
		func(id string) error { _, err := env.attempts.Abandon(ctx, id); return err },
		func(id string) error { _, err := env.attempts.Timeout(ctx, id, nil); return err },
	}
	for i, fin := range finalize {
		view, err := env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if view.AttemptNumber != i+1 {
			t.Fatalf("expected attempt number %d, got %d", i+1, view.AttemptNumber)
		}
		if err := fin(view.AttemptID); err != nil {
			t.Fatalf("finalize attempt %d: %v", i+1, err)
		}
	}

	_, err := env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected limit error, got %v", err)
	}
	if err.Error() != "attempt limit exceeded: 3 of 3 attempts used" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	other, err := env.attempts.CreateOrResume(ctx, "quiz-multi", "u2")
	if err != nil || other.AttemptNumber != 1 {
		t.Fatalf("limits are per user, got %+v %v", other, err)
	}
}

func TestConcurrentCreateOrResumeYieldsOneAttempt(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, multiQuiz(5))

	const callers = 16
	var wg sync.WaitGroup
	ids := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			view, err := env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")
			ids[i], errs[i] = view.AttemptID, err
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("callers observed different attempts: %s vs %s", ids[i], ids[0])
		}
	}

	// Finalize and start again concurrently; numbering must stay gapless.
	for round := 2; round <= 5; round++ {
		views, _ := env.attempts.ListAttempts(ctx, "quiz-multi", "u1")
		if _, err := env.attempts.Abandon(ctx, views[len(views)-1].AttemptID); err != nil {
			t.Fatalf("abandon: %v", err)
		}
		var rwg sync.WaitGroup
		for i := 0; i < 4; i++ {
			rwg.Add(1)
			go func() {
				defer rwg.Done()
				_, _ = env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")
			}()
		}
		rwg.Wait()
	}

	views, err := env.attempts.ListAttempts(ctx, "quiz-multi", "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	numbers := make([]int, 0, len(views))
	for _, v := range views {
		numbers = append(numbers, v.AttemptNumber)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			t.Fatalf("attempt numbers have gaps or repeats: %v", numbers)
		}
	}
	if len(numbers) != 5 {
		t.Fatalf("expected 5 attempts, got %v", numbers)
	}
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	ctx := context.Background()
	terminals := []domain.AttemptStatus{domain.AttemptCompleted, domain.AttemptAbandoned, domain.AttemptTimedOut}

	for _, first := range terminals {
		env := newTestEnv(t, multiQuiz(1))
		view, err := env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		finalized, err := env.attempts.Transition(ctx, view.AttemptID, first, nil)
		if err != nil {
			t.Fatalf("transition to %s: %v", first, err)
		}
		if finalized.FinishedAt == nil || !finalized.FinishedAt.Equal(testNow) {
			t.Fatalf("expected finishedAt stamped, got %v", finalized.FinishedAt)
		}

		for _, next := range terminals {
			_, err := env.attempts.Transition(ctx, view.AttemptID, next, nil)
			if !errors.Is(err, domain.ErrInvalidState) {
				t.Fatalf("%s -> %s: expected invalid state, got %v", first, next, err)
			}
			want := "attempt already finalized with status " + string(first)
			if err.Error() != want {
				t.Fatalf("expected %q, got %q", want, err.Error())
			}
		}

		stored, _ := env.attempts.GetAttempt(ctx, view.AttemptID)
		if stored.Status != first || !stored.FinishedAt.Equal(*finalized.FinishedAt) {
			t.Fatalf("attempt changed after rejected transitions: %+v", stored)
		}
	}
}

func TestTransitionRejectsInProgressTarget(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, multiQuiz(1))
	view, _ := env.attempts.CreateOrResume(ctx, "quiz-multi", "u1")

	if _, err := env.attempts.UpdateAttempt(ctx, view.AttemptID, "IN_PROGRESS", nil); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := env.attempts.UpdateAttempt(ctx, view.AttemptID, "PAUSED", nil); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for unknown status, got %v", err)
	}

	updated, err := env.attempts.UpdateAttempt(ctx, view.AttemptID, "ABANDONED", nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.AttemptAbandoned || updated.AttemptsLeft != 0 {
		t.Fatalf("unexpected view %+v", updated)
	}
}

func TestAttemptNotFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, multiQuiz(1))

	if _, err := env.attempts.CreateOrResume(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if _, err := env.attempts.Abandon(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
	if _, err := env.attempts.CreateOrResume(ctx, "quiz-multi", " "); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected user id error, got %v", err)
	}
}
