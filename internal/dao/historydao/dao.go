package historydao

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
	"github.com/segmentio/ksuid"
)

// retention bounds how long history records live before DynamoDB TTL expiry.
const retention = 400 * 24 * time.Hour

// TableName returns the default history table for env.
func TableName(env string) string {
	return fmt.Sprintf("%s-secrets-rotator-history", env)
}

// PK represents the partition key: the secret ARN or name.
type PK string

func NewPK(secretID string) PK {
	return PK(secretID)
}

func (pk PK) String() string {
	return string(pk)
}

// ID represents a history entry in format {secretID}:{ksuid}
type ID string

func NewID(pk PK, sk string) ID {
	return ID(fmt.Sprintf("%s:%s", pk, sk))
}

// ParseID splits an ID at the last colon since secret ARNs contain colons.
func ParseID(id ID) (PK, string, error) {
	s := string(id)
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("invalid ID format: %s, expected {secretID}:{ksuid}", s)
	}
	return PK(s[:i]), s[i+1:], nil
}

func (id ID) String() string {
	return string(id)
}

// Record is one rotation step outcome.
type Record struct {
	PK        PK     `ddb:"hash" dynamodbav:"pk"`  // secret id
	SK        string `ddb:"range" dynamodbav:"sk"` // KSUID, sorts by time
	Token     string `dynamodbav:"token"`          // ClientRequestToken of the rotation
	Step      string `dynamodbav:"step"`
	Outcome   string `dynamodbav:"outcome"` // SUCCEEDED, SKIPPED or FAILED
	ErrorKind string `dynamodbav:"error_kind,omitempty"`
	ErrorMsg  string `dynamodbav:"error_msg,omitempty"`
	CreatedAt int64  `dynamodbav:"created_at"` // Unix timestamp
	TTL       int64  `dynamodbav:"ttl"`
}

func (r *Record) GetID() ID {
	return NewID(r.PK, r.SK)
}

// CreateInput contains fields for appending a history record
type CreateInput struct {
	SecretID  string
	Token     string
	Step      string
	Outcome   string
	ErrorKind string
	ErrorMsg  string
	At        time.Time
}

// DAO provides data access operations for rotation history
type DAO struct {
	db    *ddb.DDB
	table *ddb.Table
}

func New(client *dynamodb.Client, tableName string) *DAO {
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		db:    db,
		table: table,
	}
}

// Create appends a record. Records are never updated.
func (d *DAO) Create(ctx context.Context, input CreateInput) (*Record, error) {
	if input.SecretID == "" {
		return nil, fmt.Errorf("secret id is required")
	}

	at := input.At
	if at.IsZero() {
		at = time.Now()
	}

	id, err := ksuid.NewRandomWithTime(at)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ksuid: %w", err)
	}

	record := &Record{
		PK:        NewPK(input.SecretID),
		SK:        id.String(),
		Token:     input.Token,
		Step:      input.Step,
		Outcome:   input.Outcome,
		ErrorKind: input.ErrorKind,
		ErrorMsg:  input.ErrorMsg,
		CreatedAt: at.Unix(),
		TTL:       at.Add(retention).Unix(),
	}

	if err := d.table.Put(record).RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to create history record: %w", err)
	}
	return record, nil
}

// Find retrieves a record by ID; returns nil if not found.
func (d *DAO) Find(ctx context.Context, id ID) (*Record, error) {
	pk, sk, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	var record Record
	err = d.table.Get(pk.String()).
		Range(sk).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		if strings.Contains(err.Error(), "item not found") || strings.Contains(err.Error(), "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history record: %w", err)
	}

	if record.PK == "" && record.SK == "" {
		return nil, nil
	}
	return &record, nil
}

// Query returns the history of secretID, newest first. limit <= 0 returns
// everything.
func (d *DAO) Query(ctx context.Context, secretID string, limit int) ([]Record, error) {
	var records []Record
	err := d.table.Query("#PK = ?", NewPK(secretID).String()).
		FindAllWithContext(ctx, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].SK > records[j].SK
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// QueryByToken returns the steps recorded for one rotation, oldest first.
func (d *DAO) QueryByToken(ctx context.Context, secretID, token string) ([]Record, error) {
	records, err := d.Query(ctx, secretID, 0)
	if err != nil {
		return nil, err
	}

	var matched []Record
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Token == token {
			matched = append(matched, records[i])
		}
	}
	return matched, nil
}
