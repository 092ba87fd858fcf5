// Package chatdb builds synthetic Messages databases for tests.
package chatdb

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wesm/chatvault/internal/store"
)

// fullSchema mirrors a modern chat.db closely enough for the query layer:
// the same table and column names, without triggers or indexes.
const fullSchema = `
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	service TEXT DEFAULT 'iMessage',
	uncanonicalized_id TEXT,
	person_centric_id TEXT
);
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT,
	chat_identifier TEXT,
	display_name TEXT,
	service_name TEXT DEFAULT 'iMessage'
);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT,
	text TEXT,
	attributedBody BLOB,
	handle_id INTEGER DEFAULT 0,
	is_from_me INTEGER DEFAULT 0,
	date INTEGER DEFAULT 0,
	service TEXT,
	account TEXT,
	subject TEXT,
	associated_message_type INTEGER DEFAULT 0,
	associated_message_guid TEXT,
	expressive_send_style_id TEXT,
	thread_originator_guid TEXT,
	reply_to_guid TEXT,
	item_type INTEGER DEFAULT 0,
	destination_caller_id TEXT,
	cache_has_attachments INTEGER DEFAULT 0
);
CREATE TABLE chat_message_join (
	chat_id INTEGER,
	message_id INTEGER,
	message_date INTEGER DEFAULT 0
);
CREATE TABLE chat_handle_join (
	chat_id INTEGER,
	handle_id INTEGER
);
CREATE TABLE attachment (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT,
	filename TEXT,
	transfer_name TEXT,
	mime_type TEXT,
	uti TEXT,
	total_bytes INTEGER DEFAULT 0
);
CREATE TABLE message_attachment_join (
	message_id INTEGER,
	attachment_id INTEGER
);
`

// minimalSchema models a very old store: no attributedBody, no reaction or
// effect columns, no person-centric handle grouping, no chat display names.
const minimalSchema = `
CREATE TABLE handle (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	service TEXT DEFAULT 'iMessage'
);
CREATE TABLE chat (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT,
	chat_identifier TEXT,
	service_name TEXT DEFAULT 'iMessage'
);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT,
	text TEXT,
	handle_id INTEGER DEFAULT 0,
	is_from_me INTEGER DEFAULT 0,
	date INTEGER DEFAULT 0
);
CREATE TABLE chat_message_join (
	chat_id INTEGER,
	message_id INTEGER,
	message_date INTEGER DEFAULT 0
);
CREATE TABLE chat_handle_join (
	chat_id INTEGER,
	handle_id INTEGER
);
`

// DB is a writable fixture database plus its on-disk path.
type DB struct {
	t    *testing.T
	Path string
	Conn *sql.DB
}

// New creates a modern-schema fixture store in a temp directory. Process-wide
// store caches are reset so each fixture probes fresh.
func New(t *testing.T) *DB {
	t.Helper()
	return create(t, fullSchema)
}

// NewMinimal creates an old-schema fixture without optional columns.
func NewMinimal(t *testing.T) *DB {
	t.Helper()
	return create(t, minimalSchema)
}

func create(t *testing.T, schema string) *DB {
	t.Helper()
	store.ResetCaches()

	path := filepath.Join(t.TempDir(), "chat.db")
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		t.Fatalf("create fixture schema: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		store.ResetCaches()
	})
	return &DB{t: t, Path: path, Conn: conn}
}

// Handle inserts a handle row and returns its ROWID.
func (d *DB) Handle(id, uncanonicalized, personCentric string) int64 {
	d.t.Helper()
	res, err := d.Conn.Exec(
		`INSERT INTO handle (id, uncanonicalized_id, person_centric_id) VALUES (?, NULLIF(?, ''), NULLIF(?, ''))`,
		id, uncanonicalized, personCentric)
	if err != nil {
		d.t.Fatalf("insert handle: %v", err)
	}
	rowID, _ := res.LastInsertId()
	return rowID
}

// HandleMinimal inserts a handle into a minimal-schema fixture.
func (d *DB) HandleMinimal(id string) int64 {
	d.t.Helper()
	res, err := d.Conn.Exec(`INSERT INTO handle (id) VALUES (?)`, id)
	if err != nil {
		d.t.Fatalf("insert handle: %v", err)
	}
	rowID, _ := res.LastInsertId()
	return rowID
}

// Chat inserts a chat row and returns its ROWID.
func (d *DB) Chat(identifier, displayName string) int64 {
	d.t.Helper()
	res, err := d.Conn.Exec(
		`INSERT INTO chat (guid, chat_identifier, display_name) VALUES (?, ?, NULLIF(?, ''))`,
		"chat-guid-"+identifier, identifier, displayName)
	if err != nil {
		d.t.Fatalf("insert chat: %v", err)
	}
	rowID, _ := res.LastInsertId()
	return rowID
}

// ChatMinimal inserts a chat into a minimal-schema fixture.
func (d *DB) ChatMinimal(identifier string) int64 {
	d.t.Helper()
	res, err := d.Conn.Exec(
		`INSERT INTO chat (guid, chat_identifier) VALUES (?, ?)`,
		"chat-guid-"+identifier, identifier)
	if err != nil {
		d.t.Fatalf("insert chat: %v", err)
	}
	rowID, _ := res.LastInsertId()
	return rowID
}

// Member links a handle into a chat.
func (d *DB) Member(chatID, handleID int64) {
	d.t.Helper()
	if _, err := d.Conn.Exec(
		`INSERT INTO chat_handle_join (chat_id, handle_id) VALUES (?, ?)`, chatID, handleID); err != nil {
		d.t.Fatalf("insert chat_handle_join: %v", err)
	}
}

// Message describes one message row to insert. Zero values mean NULL or 0.
type Message struct {
	GUID             string
	Text             string
	Payload          []byte
	HandleID         int64
	FromMe           bool
	Date             int64
	ChatID           int64
	AssociatedType   int64
	AssociatedGUID   string
	Style            string
	ThreadOriginator string
	ItemType         int64
	HasAttachments   bool
	Service          string
	Subject          string
}

// Insert adds a message row (and its chat join when ChatID is set),
// returning the message ROWID.
func (d *DB) Insert(m Message) int64 {
	d.t.Helper()
	fromMe := 0
	if m.FromMe {
		fromMe = 1
	}
	hasAtt := 0
	if m.HasAttachments {
		hasAtt = 1
	}
	res, err := d.Conn.Exec(`
		INSERT INTO message (
			guid, text, attributedBody, handle_id, is_from_me, date,
			service, subject, associated_message_type, associated_message_guid,
			expressive_send_style_id, thread_originator_guid, item_type, cache_has_attachments
		) VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, ?)`,
		m.GUID, m.Text, m.Payload, m.HandleID, fromMe, m.Date,
		m.Service, m.Subject, m.AssociatedType, m.AssociatedGUID,
		m.Style, m.ThreadOriginator, m.ItemType, hasAtt)
	if err != nil {
		d.t.Fatalf("insert message: %v", err)
	}
	msgID, _ := res.LastInsertId()

	if m.ChatID != 0 {
		if _, err := d.Conn.Exec(
			`INSERT INTO chat_message_join (chat_id, message_id, message_date) VALUES (?, ?, ?)`,
			m.ChatID, msgID, m.Date); err != nil {
			d.t.Fatalf("insert chat_message_join: %v", err)
		}
	}
	return msgID
}

// Attachment adds an attachment row joined to a message.
func (d *DB) Attachment(msgID int64, filename, mimeType, uti string, size int64) int64 {
	d.t.Helper()
	res, err := d.Conn.Exec(
		`INSERT INTO attachment (guid, filename, transfer_name, mime_type, uti, total_bytes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		"att-"+filename, filename, filepath.Base(filename), mimeType, uti, size)
	if err != nil {
		d.t.Fatalf("insert attachment: %v", err)
	}
	attID, _ := res.LastInsertId()
	if _, err := d.Conn.Exec(
		`INSERT INTO message_attachment_join (message_id, attachment_id) VALUES (?, ?)`,
		msgID, attID); err != nil {
		d.t.Fatalf("insert message_attachment_join: %v", err)
	}
	return attID
}

// Open opens the fixture through the production store layer.
func (d *DB) Open() *store.Store {
	d.t.Helper()
	s, err := store.Open(d.Path)
	if err != nil {
		d.t.Fatalf("open fixture through store: %v", err)
	}
	d.t.Cleanup(func() { s.Close() })
	return s
}

// TypedStreamPayload builds a minimal typedstream archive whose first
// NSString carries text, matching what the rich-text decoder's primary
// tier parses.
func TypedStreamPayload(text string) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0x04, 0x0B})
	buf.WriteString("streamtyped")
	buf.Write([]byte{0x81, 0xE8, 0x03, 0x84, 0x01, 0x40})
	buf.WriteByte(byte(len("NSString")))
	buf.WriteString("NSString")
	buf.Write([]byte{0x00, 0x84})
	buf.Write([]byte{0x84, 0x01, '+'})
	if len(text) < 0x80 {
		buf.WriteByte(byte(len(text)))
	} else {
		buf.WriteByte(0x81)
		var lenBytes [2]byte
		binary.LittleEndian.PutUint16(lenBytes[:], uint16(len(text)))
		buf.Write(lenBytes[:])
	}
	buf.WriteString(text)
	buf.Write([]byte{0x86, 0x84})
	return buf.Bytes()
}
