//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package mutation holds mutation tokens and the mutation state built from
them. A state is attached to a later query or scan to require that it
observes at least the mutations the tokens identify.
*/
package mutation

import (
	"fmt"
	"strconv"
	"sync"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/errors"
)

// Token identifies one mutation's position in a partition's history.
// Tokens are only produced from server responses.
type Token struct {
	BucketName     string
	PartitionID    uint16
	PartitionUUID  uint64
	SequenceNumber uint64
}

func (t Token) String() string {
	return fmt.Sprintf("%s:%d:%d:%d", t.BucketName, t.PartitionID, t.PartitionUUID, t.SequenceNumber)
}

// State is a set of tokens. Adding a token already present is a no-op.
type State struct {
	sync.RWMutex
	tokens []Token
	seen   map[Token]struct{}
}

func NewState(tokens ...Token) *State {
	s := &State{seen: make(map[Token]struct{}, len(tokens))}
	return s.Add(tokens...)
}

// Add merges tokens into the state and returns it for chaining.
func (s *State) Add(tokens ...Token) *State {
	s.Lock()
	defer s.Unlock()
	if s.seen == nil {
		s.seen = make(map[Token]struct{}, len(tokens))
	}
	for _, t := range tokens {
		if _, ok := s.seen[t]; ok {
			continue
		}
		s.seen[t] = struct{}{}
		s.tokens = append(s.tokens, t)
	}
	return s
}

// AddState merges every token of other.
func (s *State) AddState(other *State) *State {
	if other == nil || other == s {
		return s
	}
	return s.Add(other.Tokens()...)
}

// Tokens returns the tokens in first insertion order.
func (s *State) Tokens() []Token {
	s.RLock()
	defer s.RUnlock()
	rv := make([]Token, len(s.tokens))
	copy(rv, s.tokens)
	return rv
}

func (s *State) Len() int {
	if s == nil {
		return 0
	}
	s.RLock()
	defer s.RUnlock()
	return len(s.tokens)
}

// ToBackend is the export form handed to the transport.
func (s *State) ToBackend() []Token {
	if s == nil {
		return nil
	}
	return s.Tokens()
}

// scan vector form: {"bucket": {"<vbid>": [seqno, "<vbuuid>"]}}
type vectorEntry struct {
	seqNo  uint64
	vbUUID uint64
}

func (v vectorEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{v.seqNo, strconv.FormatUint(v.vbUUID, 10)})
}

func (s *State) MarshalJSON() ([]byte, error) {
	data := make(map[string]map[string]vectorEntry)
	for _, t := range s.Tokens() {
		b := data[t.BucketName]
		if b == nil {
			b = make(map[string]vectorEntry)
			data[t.BucketName] = b
		}
		b[strconv.Itoa(int(t.PartitionID))] = vectorEntry{seqNo: t.SequenceNumber, vbUUID: t.PartitionUUID}
	}
	return json.Marshal(data)
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string][]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.NewDecodingFailure("invalid mutation state", err)
	}
	var tokens []Token
	for bucket, vbs := range raw {
		for vb, entry := range vbs {
			t, err := parseVectorEntry(bucket, vb, entry)
			if err != nil {
				return err
			}
			tokens = append(tokens, t)
		}
	}
	s.Lock()
	s.tokens = nil
	s.seen = nil
	s.Unlock()
	s.Add(tokens...)
	return nil
}

func parseVectorEntry(bucket, vb string, entry []json.RawMessage) (Token, error) {
	if len(entry) != 2 {
		return Token{}, errors.NewDecodingFailure(fmt.Sprintf("mutation state entry %s/%s must have 2 elements", bucket, vb))
	}
	vbID, err := strconv.ParseUint(vb, 10, 16)
	if err != nil {
		return Token{}, errors.NewDecodingFailure("invalid partition id "+vb, err)
	}
	var seqNo uint64
	var uuid string
	if err := json.Unmarshal(entry[0], &seqNo); err != nil {
		return Token{}, errors.NewDecodingFailure("invalid sequence number", err)
	}
	if err := json.Unmarshal(entry[1], &uuid); err != nil {
		return Token{}, errors.NewDecodingFailure("invalid partition uuid", err)
	}
	vbUUID, err := strconv.ParseUint(uuid, 10, 64)
	if err != nil {
		return Token{}, errors.NewDecodingFailure("invalid partition uuid "+uuid, err)
	}
	return Token{BucketName: bucket, PartitionID: uint16(vbID), PartitionUUID: vbUUID, SequenceNumber: seqNo}, nil
}
