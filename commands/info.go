package commands

import (
	"context"
	"peerclock/config"
	"peerclock/datastore/leveldb"

	log "github.com/sirupsen/logrus"
)

// RunInfo prints the content of the sample journal. The journal is locked while a node is serving.
func RunInfo(ctx context.Context, cfg *config.Config, last uint64) {
	if cfg.DataStore.JournalPath == "" {
		log.Fatal("No sample journal configured")
	}

	journal, err := leveldb.NewSampleJournal(cfg.DataStore.JournalPath)
	if err != nil {
		log.Fatalf("Failed to open sample journal: %v", err)
	}
	defer journal.Close()

	peers, err := journal.Peers()
	if err != nil {
		log.Errorf("Failed to enumerate peers: %v", err)
		return
	}

	log.Infof("Sample journal: %d samples, %d peers", journal.GetSeq(), len(peers))
	for _, id := range peers {
		s, err := journal.Latest(id)
		if err != nil {
			log.Errorf("Failed to get latest sample for %s: %v", id, err)
			continue
		}
		log.Infof("Peer: %s, addr: %s:%d, delay: %.6fs, seq: %d", s.NodeID, s.Address, s.Port, s.Delay, s.SequenceNumber)
	}

	if last == 0 {
		return
	}

	seq := journal.GetSeq()
	start := uint64(1)
	if seq > last {
		start = seq - last + 1
	}
	samples, err := journal.EnumerateBySeq(start, seq+1)
	if err != nil {
		log.Errorf("Failed to enumerate samples: %v", err)
		return
	}
	for _, s := range samples {
		log.Infof("Sample %d: peer: %s, remote: %.3f, local: %.3f, delay: %.6fs",
			s.SequenceNumber, s.NodeID, s.RemoteTimestamp, s.LocalTimestamp, s.Delay)
	}
}
