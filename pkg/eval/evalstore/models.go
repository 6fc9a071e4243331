package evalstore

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/weftctx/weft/pkg/eval"
)

// jsonField adapts an arbitrary Go value to a TEXT column via JSON,
// mirroring pkg/store/sqlite's JSONField.
type jsonField struct {
	Data any
}

func (j *jsonField) Scan(value any) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.Errorf("cannot scan %T into jsonField", value)
		}
		bytes = []byte(str)
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, &j.Data)
}

func (j jsonField) Value() (driver.Value, error) {
	if j.Data == nil {
		return nil, nil
	}
	return json.Marshal(j.Data)
}

type dbSuite struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

func (s dbSuite) toDomain() eval.Suite {
	return eval.Suite{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
}

type dbRun struct {
	ID         string     `db:"id"`
	SuiteID    string     `db:"suite_id"`
	Model      string     `db:"model"`
	Status     string     `db:"status"`
	TotalCases int        `db:"total_cases"`
	PassCount  int        `db:"pass_count"`
	FailCount  int        `db:"fail_count"`
	CreatedAt  time.Time  `db:"created_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

func (r dbRun) toDomain() eval.Run {
	return eval.Run{
		ID:         r.ID,
		SuiteID:    r.SuiteID,
		Model:      r.Model,
		Status:     r.Status,
		TotalCases: r.TotalCases,
		PassCount:  r.PassCount,
		FailCount:  r.FailCount,
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
	}
}

type dbCase struct {
	ID        string    `db:"id"`
	RunID     string    `db:"run_id"`
	Idx       int       `db:"idx"`
	Input     jsonField `db:"input"`
	Output    jsonField `db:"output"`
	Expected  jsonField `db:"expected"`
	Error     string    `db:"error"`
	LatencyMs int64     `db:"latency_ms"`
	TokensIn  int       `db:"tokens_in"`
	TokensOut int       `db:"tokens_out"`
	CreatedAt time.Time `db:"created_at"`
}

type dbScore struct {
	ID     string  `db:"id"`
	CaseID string  `db:"case_id"`
	Scorer string  `db:"scorer"`
	Value  float64 `db:"value"`
}
