package leveldb

import (
	"peerclock/datamodel/peer"
	"peerclock/identity"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixSeq  = "SEQ" // Samples indexed by local sequence number. Followed by a 16-digit hexadecimal sequence number (64 bit)
	keyPrefixNode = "NOD" // Latest sample per peer. Followed by the peer's NodeID
)

var _ peer.SampleJournal = (*SampleJournal)(nil)

// SampleJournal keeps every delay sample under its sequence number plus the latest sample of each peer.
// It is a history for operators; the peer table is never rebuilt from it.
type SampleJournal struct {
	LevelDB
	seq uint64
}

func NewSampleJournal(path string) (*SampleJournal, error) {
	// Init the underlying LevelDB object
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	// Scan the database to identify the sequence
	iter := ldb.NewIterator(util.BytesPrefix([]byte(keyPrefixSeq)), nil)
	defer iter.Release()

	var maxSeq uint64 = 0
	if iter.Last() {
		seq, err := seqFromKey(iter.Key())
		if err != nil {
			ldb.Close()
			return nil, err
		}
		maxSeq = seq
	}

	return &SampleJournal{
		LevelDB: LevelDB{
			path: path,
			db:   ldb,
		},
		seq: maxSeq,
	}, nil
}

func (l *SampleJournal) GetSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (l *SampleJournal) Append(sample *peer.Sample) (*peer.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *sample
	stored.SequenceNumber = l.seq + 1

	raw, err := cbor.Marshal(&stored)
	if err != nil {
		return nil, err
	}

	// Both keys are written atomically
	batch := new(leveldb.Batch)
	batch.Put(keyFromSeq(stored.SequenceNumber), raw)
	batch.Put(keyFromNodeID(stored.NodeID), raw)
	if err := l.db.Write(batch, nil); err != nil {
		return nil, err
	}

	l.seq = stored.SequenceNumber
	return &stored, nil
}

func (l *SampleJournal) Latest(id identity.NodeID) (*peer.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := l.db.Get(keyFromNodeID(id), nil)
	if err != nil {
		return nil, err
	}

	s := &peer.Sample{}
	if err := cbor.Unmarshal(raw, s); err != nil {
		return nil, err
	}

	// Compare the NodeID just in case
	if s.NodeID != id {
		log.Errorf("Latest: NodeID mismatch: %s != %s", id, s.NodeID)
		return nil, ErrCorrupted
	}

	return s, nil
}

func (l *SampleJournal) EnumerateBySeq(start uint64, end uint64) ([]*peer.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []*peer.Sample

	iter := l.db.NewIterator(&util.Range{Start: keyFromSeq(start), Limit: keyFromSeq(end)}, nil)
	defer iter.Release()

	for iter.Next() {
		s := &peer.Sample{}
		if err := cbor.Unmarshal(iter.Value(), s); err != nil {
			return nil, err
		}
		results = append(results, s)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}

func (l *SampleJournal) Peers() ([]identity.NodeID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var results []identity.NodeID

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixNode)), nil)
	defer iter.Release()

	for iter.Next() {
		results = append(results, nodeIDFromKey(iter.Key()))
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}
