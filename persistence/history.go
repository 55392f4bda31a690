package persistence

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	chatsBucket = []byte("chats")
	indexBucket = []byte("index")

	ErrMessageNotFound = errors.New("message not found")
)

// StoredMessage is a message kept in the local chat history
type StoredMessage struct {
	ID        string
	ChatID    string
	From      string
	Body      string
	Timestamp time.Time
	FromMe    bool
}

// History keeps a bounded window of recent messages per chat in a bbolt file.
// Keys inside a chat bucket are a big-endian nanosecond timestamp, the bucket
// sequence number and the message ID, so cursor order is chronological and
// messages with equal timestamps keep their arrival order.
type History struct {
	db      *bbolt.DB
	perChat int
}

func NewHistory(path string, perChat int) (*History, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(chatsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if perChat <= 0 {
		perChat = 100
	}
	return &History{db: db, perChat: perChat}, nil
}

// Save stores a message, replacing any previous copy with the same ID, and
// drops the oldest messages of the chat beyond the configured window.
func (h *History) Save(msg *StoredMessage) error {
	if msg.ID == "" || msg.ChatID == "" {
		return fmt.Errorf("message id and chat id are required")
	}
	data, err := encodeToBinary(msg)
	if err != nil {
		return err
	}

	return h.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket(indexBucket)
		chats := tx.Bucket(chatsBucket)

		if loc := index.Get([]byte(msg.ID)); loc != nil {
			if err := deleteAt(chats, loc); err != nil {
				return err
			}
		}

		chat, err := chats.CreateBucketIfNotExists([]byte(msg.ChatID))
		if err != nil {
			return err
		}
		seq, err := chat.NextSequence()
		if err != nil {
			return err
		}
		key := messageKey(msg.Timestamp, seq, msg.ID)
		if err := chat.Put(key, data); err != nil {
			return err
		}
		if err := index.Put([]byte(msg.ID), location(msg.ChatID, key)); err != nil {
			return err
		}
		return h.trim(chat, index)
	})
}

// Recent returns up to limit of the newest messages of a chat, oldest first
func (h *History) Recent(chatID string, limit int) ([]StoredMessage, error) {
	var out []StoredMessage
	err := h.db.View(func(tx *bbolt.Tx) error {
		chat := tx.Bucket(chatsBucket).Bucket([]byte(chatID))
		if chat == nil {
			return nil
		}
		c := chat.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var msg StoredMessage
			if err := decodeBinary(v, &msg); err != nil {
				return fmt.Errorf("decoding message %q: %w", k[keyPrefixLen:], err)
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Get looks a message up by its ID across all chats
func (h *History) Get(messageID string) (*StoredMessage, error) {
	var msg StoredMessage
	err := h.db.View(func(tx *bbolt.Tx) error {
		loc := tx.Bucket(indexBucket).Get([]byte(messageID))
		if loc == nil {
			return ErrMessageNotFound
		}
		chatID, key := splitLocation(loc)
		chat := tx.Bucket(chatsBucket).Bucket(chatID)
		if chat == nil {
			return ErrMessageNotFound
		}
		data := chat.Get(key)
		if data == nil {
			return ErrMessageNotFound
		}
		return decodeBinary(data, &msg)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) trim(chat, index *bbolt.Bucket) error {
	count := 0
	c := chat.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	for count > h.perChat {
		k, _ := c.First()
		if k == nil {
			break
		}
		if err := index.Delete(k[keyPrefixLen:]); err != nil {
			return err
		}
		if err := c.Delete(); err != nil {
			return err
		}
		count--
	}
	return nil
}

func deleteAt(chats *bbolt.Bucket, loc []byte) error {
	chatID, key := splitLocation(loc)
	chat := chats.Bucket(chatID)
	if chat == nil {
		return nil
	}
	return chat.Delete(key)
}

// keyPrefixLen is the size of the timestamp and sequence ahead of the ID
const keyPrefixLen = 16

var epoch = time.Unix(0, 0)

// messageKey orders by timestamp, then by arrival. Timestamps before 1970,
// including the zero time, sort first.
func messageKey(ts time.Time, seq uint64, id string) []byte {
	var nanos uint64
	if ts.After(epoch) {
		nanos = uint64(ts.UnixNano())
	}
	key := make([]byte, keyPrefixLen+len(id))
	binary.BigEndian.PutUint64(key, nanos)
	binary.BigEndian.PutUint64(key[8:], seq)
	copy(key[keyPrefixLen:], id)
	return key
}

// location is chatID, a zero byte, then the message key
func location(chatID string, key []byte) []byte {
	loc := make([]byte, 0, len(chatID)+1+len(key))
	loc = append(loc, chatID...)
	loc = append(loc, 0)
	return append(loc, key...)
}

func splitLocation(loc []byte) ([]byte, []byte) {
	i := bytes.IndexByte(loc, 0)
	if i < 0 {
		return loc, nil
	}
	return loc[:i], loc[i+1:]
}

func encodeToBinary(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(data)
	return buf.Bytes(), err
}

func decodeBinary(data []byte, target interface{}) error {
	buf := bytes.NewBuffer(data)
	return gob.NewDecoder(buf).Decode(target)
}
