//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package options

import (
	"strconv"
	"strings"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/mutation"
)

type ScanConsistency int

const (
	NotBounded ScanConsistency = iota
	RequestPlus
)

func (s ScanConsistency) String() string {
	if s == RequestPlus {
		return "request_plus"
	}
	return "not_bounded"
}

// parameters are the statement arguments of query and analytics
// requests. Positional and named arguments are exclusive: setting one
// kind clears the other. Values are kept pre-serialized.
type parameters struct {
	positional [][]byte
	named      map[string][]byte
	raw        map[string][]byte
}

func newParameters(positional []interface{}, named map[string]interface{}) (parameters, error) {
	var p parameters
	if len(positional) > 0 && len(named) > 0 {
		return p, errors.NewInvalidArgument("positional and named parameters cannot be used together")
	}
	if len(positional) > 0 {
		if err := p.SetPositionalParameters(positional...); err != nil {
			return p, err
		}
	}
	if len(named) > 0 {
		if err := p.SetNamedParameters(named); err != nil {
			return p, err
		}
	}
	return p, nil
}

func (p *parameters) SetPositionalParameters(values ...interface{}) error {
	encoded := make([][]byte, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.NewEncodingFailure("positional parameter cannot be serialized", err)
		}
		encoded = append(encoded, b)
	}
	p.positional = encoded
	p.named = nil
	return nil
}

func (p *parameters) SetNamedParameters(values map[string]interface{}) error {
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.NewEncodingFailure("named parameter "+k+" cannot be serialized", err)
		}
		encoded[k] = b
	}
	p.named = encoded
	p.positional = nil
	return nil
}

// RawParameter sets a request field that has no dedicated option.
func (p *parameters) RawParameter(key string, value interface{}) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.NewEncodingFailure("raw parameter "+key+" cannot be serialized", err)
	}
	if p.raw == nil {
		p.raw = make(map[string][]byte)
	}
	p.raw[key] = b
	return nil
}

// PositionalParameters are the JSON encoded positional arguments.
func (p *parameters) PositionalParameters() []string {
	if p.positional == nil {
		return nil
	}
	rv := make([]string, len(p.positional))
	for i, b := range p.positional {
		rv[i] = string(b)
	}
	return rv
}

func (p *parameters) NamedParameters() map[string]string {
	if p.named == nil {
		return nil
	}
	rv := make(map[string]string, len(p.named))
	for k, b := range p.named {
		rv[k] = string(b)
	}
	return rv
}

func (p *parameters) export(body map[string]interface{}) {
	if len(p.positional) > 0 {
		args := make([]json.RawMessage, len(p.positional))
		for i, b := range p.positional {
			args[i] = json.RawMessage(b)
		}
		body["args"] = args
	}
	for k, b := range p.named {
		if !strings.HasPrefix(k, "$") {
			k = "$" + k
		}
		body[k] = rawValue(b)
	}
	for k, b := range p.raw {
		body[k] = rawValue(b)
	}
}

// rawValue splices pre-serialized JSON into a map. go_json only
// marshals a RawMessage verbatim through a pointer.
func rawValue(b []byte) *json.RawMessage {
	rm := json.RawMessage(b)
	return &rm
}

// consistency couples a scan consistency level and a mutation state:
// whichever was set last wins.
type consistency struct {
	scanConsistency ScanConsistency
	state           *mutation.State
}

func (c *consistency) SetScanConsistency(s ScanConsistency) {
	c.scanConsistency = s
	c.state = nil
}

func (c *consistency) SetConsistentWith(state *mutation.State) {
	c.state = state
	c.scanConsistency = NotBounded
}

func (c *consistency) ScanConsistency() ScanConsistency { return c.scanConsistency }
func (c *consistency) ConsistentWith() *mutation.State  { return c.state }

type QueryProfile string

const (
	QueryProfileOff     QueryProfile = "off"
	QueryProfilePhases  QueryProfile = "phases"
	QueryProfileTimings QueryProfile = "timings"
)

type Query struct {
	Common
	parameters
	consistency
	AdHoc           bool
	ClientContextID string
	Metrics         bool
	Profile         QueryProfile
	Readonly        bool
	FlexIndex       bool
	PreserveExpiry  bool
	UseReplica      *bool
	MaxParallelism  *uint32
	PipelineBatch   *uint32
	PipelineCap     *uint32
	ScanCap         *uint32
	ScanWait        time.Duration
	// QueryContext scopes unqualified keyspaces, e.g. "default:`bucket`.`scope`".
	QueryContext string
}

func DefaultQuery() *Query {
	return &Query{AdHoc: true}
}

// NewQuery fails when both parameter kinds are given.
func NewQuery(positional []interface{}, named map[string]interface{}) (*Query, error) {
	p, err := newParameters(positional, named)
	if err != nil {
		return nil, err
	}
	q := DefaultQuery()
	q.parameters = p
	return q, nil
}

// Request builds the query service payload.
func (o *Query) Request(statement string) (*backend.QueryRequest, error) {
	timeout := o.timeout(DefaultQueryTimeout)
	body := map[string]interface{}{
		"statement": statement,
		"timeout":   timeout.String(),
	}
	if o.ClientContextID != "" {
		body["client_context_id"] = o.ClientContextID
	}
	if o.state != nil && o.state.Len() > 0 {
		body["scan_consistency"] = "at_plus"
		body["scan_vectors"] = o.state
	} else if o.scanConsistency == RequestPlus {
		body["scan_consistency"] = o.scanConsistency.String()
	}
	if o.Readonly {
		body["readonly"] = true
	}
	if o.Metrics {
		body["metrics"] = true
	}
	if o.Profile != "" && o.Profile != QueryProfileOff {
		body["profile"] = string(o.Profile)
	}
	if o.FlexIndex {
		body["use_fts"] = true
	}
	if o.PreserveExpiry {
		body["preserve_expiry"] = true
	}
	if o.UseReplica != nil {
		if *o.UseReplica {
			body["use_replica"] = "on"
		} else {
			body["use_replica"] = "off"
		}
	}
	for k, v := range map[string]*uint32{
		"max_parallelism": o.MaxParallelism,
		"pipeline_batch":  o.PipelineBatch,
		"pipeline_cap":    o.PipelineCap,
		"scan_cap":        o.ScanCap,
	} {
		if v != nil {
			body[k] = strconv.FormatUint(uint64(*v), 10)
		}
	}
	if o.ScanWait > 0 {
		body["scan_wait"] = o.ScanWait.String()
	}
	if o.QueryContext != "" {
		body["query_context"] = o.QueryContext
	}
	o.parameters.export(body)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewEncodingFailure("query payload cannot be serialized", err)
	}
	return &backend.QueryRequest{
		Statement:     statement,
		Payload:       payload,
		ReadOnly:      o.Readonly,
		Timeout:       timeout,
		RetryStrategy: o.RetryStrategy,
		ParentSpan:    o.ParentSpan,
	}, nil
}

type Analytics struct {
	Common
	parameters
	ClientContextID string
	Priority        bool
	Readonly        bool
	ScanConsistency ScanConsistency
	// ScopeQualifier is the query_context of scope level requests.
	ScopeQualifier string
}

func DefaultAnalytics() *Analytics {
	return &Analytics{}
}

func NewAnalytics(positional []interface{}, named map[string]interface{}) (*Analytics, error) {
	p, err := newParameters(positional, named)
	if err != nil {
		return nil, err
	}
	return &Analytics{parameters: p}, nil
}

// Payload is the analytics service request body.
func (o *Analytics) Payload(statement string) ([]byte, error) {
	body := map[string]interface{}{
		"statement": statement,
		"timeout":   o.timeout(DefaultAnalyticsTimeout).String(),
	}
	if o.ClientContextID != "" {
		body["client_context_id"] = o.ClientContextID
	}
	if o.Readonly {
		body["readonly"] = true
	}
	if o.ScanConsistency == RequestPlus {
		body["scan_consistency"] = o.ScanConsistency.String()
	}
	if o.ScopeQualifier != "" {
		body["query_context"] = o.ScopeQualifier
	}
	o.parameters.export(body)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewEncodingFailure("analytics payload cannot be serialized", err)
	}
	return payload, nil
}

type SearchHighlightStyle string

const (
	HighlightDefault SearchHighlightStyle = ""
	HighlightHTML    SearchHighlightStyle = "html"
	HighlightANSI    SearchHighlightStyle = "ansi"
)

type Search struct {
	Common
	consistency
	Limit            *uint32
	Skip             *uint32
	Explain          bool
	HighlightStyle   SearchHighlightStyle
	HighlightFields  []string
	Fields           []string
	Sort             []string
	Collections      []string
	DisableScoring   bool
	IncludeLocations bool
	ClientContextID  string
	Raw              map[string]interface{}
}

func DefaultSearch() *Search {
	return &Search{}
}

// Payload is the search service request body for an already encoded
// query.
func (o *Search) Payload(indexName string, query json.RawMessage) ([]byte, error) {
	if indexName == "" {
		return nil, errors.NewInvalidArgument("search index name is required")
	}
	if len(query) == 0 {
		return nil, errors.NewInvalidArgument("search query is required")
	}
	ctl := map[string]interface{}{
		"timeout": o.timeout(DefaultSearchTimeout).Milliseconds(),
	}
	if o.state != nil && o.state.Len() > 0 {
		vectors := make(map[string]uint64)
		for _, t := range o.state.Tokens() {
			vectors[strconv.Itoa(int(t.PartitionID))+"/"+strconv.FormatUint(t.PartitionUUID, 10)] = t.SequenceNumber
		}
		ctl["consistency"] = map[string]interface{}{
			"level":   "at_plus",
			"vectors": map[string]interface{}{indexName: vectors},
		}
	} else if o.scanConsistency == RequestPlus {
		return nil, errors.NewFeatureNotAvailable("request_plus consistency for search")
	}
	body := map[string]interface{}{
		"query": rawValue(query),
		"ctl":   ctl,
	}
	if o.Limit != nil {
		body["size"] = *o.Limit
	}
	if o.Skip != nil {
		body["from"] = *o.Skip
	}
	if o.Explain {
		body["explain"] = true
	}
	if o.HighlightStyle != HighlightDefault || len(o.HighlightFields) > 0 {
		h := map[string]interface{}{}
		if o.HighlightStyle != HighlightDefault {
			h["style"] = string(o.HighlightStyle)
		}
		if len(o.HighlightFields) > 0 {
			h["fields"] = o.HighlightFields
		}
		body["highlight"] = h
	}
	if len(o.Fields) > 0 {
		body["fields"] = o.Fields
	}
	if len(o.Sort) > 0 {
		body["sort"] = o.Sort
	}
	if len(o.Collections) > 0 {
		body["collections"] = o.Collections
	}
	if o.DisableScoring {
		body["score"] = "none"
	}
	if o.IncludeLocations {
		body["includeLocations"] = true
	}
	for k, v := range o.Raw {
		if rm, ok := v.(json.RawMessage); ok {
			v = rawValue(rm)
		}
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.NewEncodingFailure("search payload cannot be serialized", err)
	}
	return payload, nil
}
