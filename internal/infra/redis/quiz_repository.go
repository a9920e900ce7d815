package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"quiz-attempt-service/internal/domain"
	"quiz-attempt-service/internal/logger"
)

// QuizLoader fetches quiz content, questions included, from the system of record.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

const (
	definitionField = "definition"
	questionPrefix  = "q:"
)

// QuizRepository caches quizzes in Redis (one hash per quiz) and falls back to a loader on
// cache miss. Layout:
//
//	HSET quiz:{quizID} definition {quiz header JSON}
//	HSET quiz:{quizID} q:{questionID} {question JSON}
//	INCR quiz:{quizID}:gen            (on Invalidate)
//
// A fill is written only if the generation it read before loading is still current.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    *zap.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log *zap.Logger) *QuizRepository {
	log = logger.OrNop(log)
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}

		gen, err := r.generation(ctx, r.client, quizID)
		if err != nil {
			r.log.Warn("quiz cache generation read failed", zap.String("quizId", quizID), zap.Error(err))
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		if gen >= 0 {
			err = r.store(ctx, quiz, gen)
			switch {
			case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
				r.log.Debug("quiz invalidated during load, skipping cache fill", zap.String("quizId", quizID))
			case err != nil:
				r.log.Warn("quiz cache fill failed", zap.String("quizId", quizID), zap.Error(err))
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

var errStaleFill = errors.New("quiz cache generation changed")

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Invalidate bumps the quiz generation and deletes the cached hash so the next read goes to
// the loader and in-flight fills are discarded.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID string) error {
	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, r.genKey(quizID))
	pipe.Del(ctx, r.key(quizID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate quiz %s: %w", quizID, err)
	}
	r.sf.Forget(quizID)
	return nil
}

// generation returns the quiz's invalidation counter, 0 when never invalidated and -1 on
// read failure.
func (r *QuizRepository) generation(ctx context.Context, c getter, quizID string) (int64, error) {
	gen, err := c.Get(ctx, r.genKey(quizID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return -1, err
	}
	return gen, nil
}

func (r *QuizRepository) cached(ctx context.Context, quizID string) (domain.Quiz, bool) {
	fields, err := r.client.HGetAll(ctx, r.key(quizID)).Result()
	if err != nil {
		r.log.Warn("quiz cache read failed", zap.String("quizId", quizID), zap.Error(err))
		return domain.Quiz{}, false
	}
	if len(fields) == 0 {
		return domain.Quiz{}, false
	}
	quiz, err := decodeQuiz(fields)
	if err != nil {
		r.log.Warn("dropping undecodable cached quiz", zap.String("quizId", quizID), zap.Error(err))
		_ = r.client.Del(ctx, r.key(quizID)).Err()
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) store(ctx context.Context, quiz domain.Quiz, gen int64) error {
	header := quiz
	header.Questions = nil
	definition, err := json.Marshal(header)
	if err != nil {
		return err
	}
	values := make([]interface{}, 0, 2+2*len(quiz.Questions))
	values = append(values, definitionField, definition)
	for _, q := range quiz.Questions {
		encoded, err := json.Marshal(q)
		if err != nil {
			return err
		}
		values = append(values, questionPrefix+q.ID, encoded)
	}

	key := r.key(quiz.ID)
	ttl := r.ttlWithJitter()
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := r.generation(ctx, tx, quiz.ID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, values...)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}, r.genKey(quiz.ID))
}

func decodeQuiz(fields map[string]string) (domain.Quiz, error) {
	definition, ok := fields[definitionField]
	if !ok {
		return domain.Quiz{}, fmt.Errorf("missing %s field", definitionField)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(definition), &quiz); err != nil {
		return domain.Quiz{}, err
	}
	quiz.Questions = make([]domain.QuizQuestion, 0, len(fields)-1)
	for field, value := range fields {
		if !strings.HasPrefix(field, questionPrefix) {
			continue
		}
		var q domain.QuizQuestion
		if err := json.Unmarshal([]byte(value), &q); err != nil {
			return domain.Quiz{}, err
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	domain.SortByPosition(quiz.Questions)
	return quiz, nil
}

func (r *QuizRepository) key(quizID string) string {
	return "quiz:" + quizID
}

func (r *QuizRepository) genKey(quizID string) string {
	return "quiz:" + quizID + ":gen"
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
