package document

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

var (
	documentsBucket = []byte("documents")
	lineItemsBucket = []byte("line_items")
	sequenceBucket  = []byte("sequences")
)

// labelFormat is used for generated document labels
const labelFormat = "OCR-%05d"

// Mutation edits a document inside a store transaction. A non-nil error
// aborts the transaction and is returned unchanged to the caller.
type Mutation func(doc *Document) error

// Sequencer hands out human-readable document labels
type Sequencer interface {
	NextLabel() (string, error)
}

// DB defines the interface for document persistence. Every method is atomic.
type DB interface {
	Sequencer

	// CreateDocument assigns a new ID to doc and saves it
	CreateDocument(doc *Document) error

	// GetDocument retrieves a document by ID
	GetDocument(id string) (*Document, error)

	// ListDocuments returns all documents
	ListDocuments() ([]*Document, error)

	// DeleteDocument removes a document and its line items unless it is
	// processing (ErrRunInProgress)
	DeleteDocument(id string) error

	// LineItems returns a document's line items in stored order
	LineItems(id string) ([]LineItem, error)

	// Update applies mutate to the stored document and saves the result
	Update(id string, mutate Mutation) (*Document, error)

	// UpdateWithLines is Update that also replaces every line item of the
	// document with lines, in the same transaction
	UpdateWithLines(id string, mutate Mutation, lines []LineItem) (*Document, error)

	// Close closes the database connection
	Close() error
}

// lineRecord is the stored form of a line item; extensions are never stored
type lineRecord struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{documentsBucket, lineItemsBucket, sequenceBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// NextLabel returns the next label from the persistent sequence
func (b *BoltDB) NextLabel() (string, error) {
	var label string
	err := b.db.Update(func(tx *bbolt.Tx) error {
		seq, err := tx.Bucket(sequenceBucket).NextSequence()
		if err != nil {
			return fmt.Errorf("advancing sequence: %w", err)
		}
		label = fmt.Sprintf(labelFormat, seq)
		return nil
	})
	if err != nil {
		return "", err
	}
	return label, nil
}

// CreateDocument saves a new document under the next sequence ID
func (b *BoltDB) CreateDocument(doc *Document) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(documentsBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("advancing document sequence: %w", err)
		}
		doc.ID = strconv.FormatUint(seq, 10)
		return putDocument(bucket, doc)
	})
}

// GetDocument retrieves a document by ID
func (b *BoltDB) GetDocument(id string) (*Document, error) {
	var doc *Document
	err := b.db.View(func(tx *bbolt.Tx) error {
		var err error
		doc, err = getDocument(tx.Bucket(documentsBucket), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents
func (b *BoltDB) ListDocuments() ([]*Document, error) {
	docs := make([]*Document, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(documentsBucket).ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("unmarshaling document: %w", err)
			}
			docs = append(docs, &doc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocument removes a document and cascades to its line items. A
// document that is processing is refused with ErrRunInProgress inside the
// same transaction, so a run cannot claim it between check and delete.
func (b *BoltDB) DeleteDocument(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(documentsBucket)
		doc, err := getDocument(bucket, id)
		if err != nil {
			return err
		}
		if doc.Status == StatusProcessing {
			return ErrRunInProgress
		}
		if err := bucket.Delete([]byte(id)); err != nil {
			return err
		}
		return deleteLines(tx, id)
	})
}

// LineItems returns a document's line items in stored order
func (b *BoltDB) LineItems(id string) ([]LineItem, error) {
	lines := make([]LineItem, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(documentsBucket).Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		items := tx.Bucket(lineItemsBucket).Bucket([]byte(id))
		if items == nil {
			return nil
		}
		return items.ForEach(func(k, v []byte) error {
			var rec lineRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling line item: %w", err)
			}
			lines = append(lines, LineItem(rec))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// Update applies mutate to the stored document in one write transaction
func (b *BoltDB) Update(id string, mutate Mutation) (*Document, error) {
	return b.update(id, mutate, nil, false)
}

// UpdateWithLines applies mutate and replaces the line items in one write
// transaction
func (b *BoltDB) UpdateWithLines(id string, mutate Mutation, lines []LineItem) (*Document, error) {
	return b.update(id, mutate, lines, true)
}

func (b *BoltDB) update(id string, mutate Mutation, lines []LineItem, replaceLines bool) (*Document, error) {
	var doc *Document
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(documentsBucket)
		var err error
		doc, err = getDocument(bucket, id)
		if err != nil {
			return err
		}
		if err := mutate(doc); err != nil {
			return err
		}
		doc.ID = id
		if err := putDocument(bucket, doc); err != nil {
			return err
		}
		if replaceLines {
			return putLines(tx, id, lines)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func getDocument(bucket *bbolt.Bucket, id string) (*Document, error) {
	data := bucket.Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling document: %w", err)
	}
	return &doc, nil
}

func putDocument(bucket *bbolt.Bucket, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	return bucket.Put([]byte(doc.ID), data)
}

func deleteLines(tx *bbolt.Tx, id string) error {
	items := tx.Bucket(lineItemsBucket)
	if items.Bucket([]byte(id)) == nil {
		return nil
	}
	return items.DeleteBucket([]byte(id))
}

// putLines discards the existing line items and writes lines in order
func putLines(tx *bbolt.Tx, id string, lines []LineItem) error {
	if err := deleteLines(tx, id); err != nil {
		return fmt.Errorf("clearing line items: %w", err)
	}
	if len(lines) == 0 {
		return nil
	}
	items, err := tx.Bucket(lineItemsBucket).CreateBucket([]byte(id))
	if err != nil {
		return fmt.Errorf("creating line item bucket: %w", err)
	}
	for i, line := range lines {
		data, err := json.Marshal(lineRecord(line))
		if err != nil {
			return fmt.Errorf("marshaling line item: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, uint64(i))
		if err := items.Put(key, data); err != nil {
			return err
		}
	}
	return nil
}
