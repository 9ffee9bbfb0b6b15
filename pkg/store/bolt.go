package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"time"

	"Skynet/models"

	"go.etcd.io/bbolt"
)

var (
	chatsBucket     = []byte("chats")
	orderBucket     = []byte("order")
	positionsBucket = []byte("positions")
)

// BoltStore persists chats in a single bbolt file. chats maps id to the gob
// encoded chat; order maps a sequence number to the id so cursors walk chats
// in insertion order; positions is the reverse index.
type BoltStore struct {
	db *bbolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{chatsBucket, orderBucket, positionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) AppendExchange(_ context.Context, id, title string, msgs []models.Message) (*models.Chat, bool, error) {
	var (
		out     *models.Chat
		created bool
	)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		chats := tx.Bucket(chatsBucket)
		key := []byte(id)

		var c models.Chat
		if data := chats.Get(key); data == nil {
			created = true
			c = models.Chat{ID: id, Title: models.ApplyTitle("", true, title, countKeys(chats))}
			order := tx.Bucket(orderBucket)
			seq, err := order.NextSequence()
			if err != nil {
				return err
			}
			if err := order.Put(itob(seq), key); err != nil {
				return err
			}
			if err := tx.Bucket(positionsBucket).Put(key, itob(seq)); err != nil {
				return err
			}
		} else {
			if err := decodeBinary(data, &c); err != nil {
				return err
			}
			c.Title = models.ApplyTitle(c.Title, false, title, 0)
		}
		c.Messages = append(c.Messages, msgs...)

		data, err := encodeToBinary(&c)
		if err != nil {
			return err
		}
		out = &c
		return chats.Put(key, data)
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func (s *BoltStore) List(_ context.Context) ([]models.ChatSummary, error) {
	out := make([]models.ChatSummary, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		chats := tx.Bucket(chatsBucket)
		cur := tx.Bucket(orderBucket).Cursor()
		for k, id := cur.First(); k != nil; k, id = cur.Next() {
			data := chats.Get(id)
			if data == nil {
				continue
			}
			var c models.Chat
			if err := decodeBinary(data, &c); err != nil {
				return err
			}
			out = append(out, c.Summary())
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) Get(_ context.Context, id string) (*models.Chat, error) {
	var c models.Chat
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(chatsBucket).Get([]byte(id))
		if data == nil {
			return notFound(id)
		}
		return decodeBinary(data, &c)
	})
	if err != nil {
		return nil, err
	}
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
	return &c, nil
}

func (s *BoltStore) Delete(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key := []byte(id)
		chats := tx.Bucket(chatsBucket)
		if chats.Get(key) == nil {
			return notFound(id)
		}
		positions := tx.Bucket(positionsBucket)
		if seq := positions.Get(key); seq != nil {
			if err := tx.Bucket(orderBucket).Delete(seq); err != nil {
				return err
			}
		}
		if err := positions.Delete(key); err != nil {
			return err
		}
		return chats.Delete(key)
	})
}

func (s *BoltStore) DeleteAll(_ context.Context) (int, error) {
	var n int
	err := s.db.Update(func(tx *bbolt.Tx) error {
		n = countKeys(tx.Bucket(chatsBucket))
		for _, name := range [][]byte{chatsBucket, orderBucket, positionsBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func countKeys(b *bbolt.Bucket) int {
	n := 0
	cur := b.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		n++
	}
	return n
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func encodeToBinary(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(data)
	return buf.Bytes(), err
}

func decodeBinary(data []byte, target interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(target)
}

var _ Store = (*BoltStore)(nil)
