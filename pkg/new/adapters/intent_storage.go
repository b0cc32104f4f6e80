package adapters

import (
	"database/sql"
	"log"
	"time"

	"github.com/piraces/feedsync/pkg/metrics"
	"github.com/piraces/feedsync/pkg/new/domain/feed"
	"github.com/piraces/feedsync/pkg/new/domain/websub"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// IntentStorage persists subscription requests sent to hubs so that their
// verification requests can be answered.
type IntentStorage struct {
	db *sql.DB
}

func NewIntentStorage(db *sql.DB) *IntentStorage {
	return &IntentStorage{db: db}
}

func (f *IntentStorage) Put(intent websub.Intent) error {
	_, err := f.db.Exec(`
		INSERT INTO intents (topic, hub, mode, state, lease_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(topic) DO UPDATE SET
			hub=excluded.hub,
			mode=excluded.mode,
			state=excluded.state,
			lease_seconds=excluded.lease_seconds,
			updated_at=excluded.updated_at`,
		intent.Topic().String(),
		intent.Hub().String(),
		intent.Mode().String(),
		intent.State().String(),
		intent.LeaseSeconds(),
		intent.UpdatedAt().Unix(),
	)
	if err != nil {
		log.Printf("[ERROR] failure: %v", err)
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrap(err, "error saving the intent")
	}

	log.Printf("[DEBUG] saved %s intent for topic %q at hub %q", intent.Mode(), intent.Topic(), intent.Hub())
	return nil
}

func (f *IntentStorage) Get(topic feed.Address) (websub.Intent, error) {
	row := f.db.QueryRow(`
		SELECT topic, hub, mode, state, lease_seconds, updated_at
		FROM intents
		WHERE topic=$1`,
		topic.String(),
	)

	intent, err := f.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return websub.Intent{}, websub.ErrIntentNotFound
		}
		return websub.Intent{}, errors.Wrap(err, "error getting the intent")
	}
	return intent, nil
}

func (f *IntentStorage) MarkVerified(topic feed.Address, leaseSeconds int, now time.Time) error {
	result, err := f.db.Exec(`
		UPDATE intents
		SET state=$1, lease_seconds=$2, updated_at=$3
		WHERE topic=$4`,
		websub.StateVerified.String(),
		leaseSeconds,
		now.Unix(),
		topic.String(),
	)
	if err != nil {
		metrics.AppErrors.With(prometheus.Labels{"type": "SQL_WRITE"}).Inc()
		return errors.Wrap(err, "error updating the intent")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error checking affected rows")
	}
	if affected == 0 {
		return websub.ErrIntentNotFound
	}
	return nil
}

func (f *IntentStorage) Ping() error {
	return f.db.Ping()
}

type scanner interface {
	Scan(dest ...any) error
}

func (f *IntentStorage) scan(row scanner) (websub.Intent, error) {
	var (
		tmptopic        string
		tmphub          string
		tmpmode         string
		tmpstate        string
		tmpleaseseconds int
		tmpupdatedat    int64
	)

	if err := row.Scan(&tmptopic, &tmphub, &tmpmode, &tmpstate, &tmpleaseseconds, &tmpupdatedat); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			metrics.AppErrors.With(prometheus.Labels{"type": "SQL_SCAN"}).Inc()
		}
		return websub.Intent{}, err
	}

	topic, err := feed.NewAddress(tmptopic)
	if err != nil {
		return websub.Intent{}, errors.Wrap(err, "error creating topic")
	}

	hub, err := feed.NewAddress(tmphub)
	if err != nil {
		return websub.Intent{}, errors.Wrap(err, "error creating hub")
	}

	mode, err := websub.NewMode(tmpmode)
	if err != nil {
		return websub.Intent{}, errors.Wrap(err, "error creating mode")
	}

	state, err := websub.NewState(tmpstate)
	if err != nil {
		return websub.Intent{}, errors.Wrap(err, "error creating state")
	}

	return websub.NewIntent(topic, hub, mode, state, tmpleaseseconds, time.Unix(tmpupdatedat, 0))
}
