//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package gcagent

import (
	"context"

	"github.com/couchbase/gocbcore/v10"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
)

// Query runs a statement on the query service through the bucketless
// agent and buffers every row.
func (c *Client) Query(ctx context.Context, req *backend.QueryRequest) (*backend.QueryResponse, error) {
	if len(req.Payload) == 0 {
		return nil, errors.NewInvalidArgument("query payload is empty")
	}
	cl, err := c.begin(ctx, backend.Location{}, req.Timeout, req.RetryStrategy)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	reader, err := wait(ctx, !req.ReadOnly, func(cb func(*gocbcore.N1QLRowReader, error)) (gocbcore.PendingOp, error) {
		return cl.agent.N1QLQuery(gocbcore.N1QLQueryOptions{
			Payload:       req.Payload,
			RetryStrategy: cl.retry,
			Deadline:      cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mapError(err, "")
	}
	defer reader.Close()

	rv := &backend.QueryResponse{}
	for row := reader.NextRow(); row != nil; row = reader.NextRow() {
		rv.Rows = append(rv.Rows, append([]byte(nil), row...))
		if err := ctxError(ctx, !req.ReadOnly); err != nil {
			return nil, err
		}
	}
	if err := reader.Err(); err != nil {
		return nil, mapError(err, "")
	}
	if rv.Meta, err = reader.MetaData(); err != nil {
		return nil, mapError(err, "")
	}
	logging.Debugf("gcagent: query returned %d rows", len(rv.Rows))
	return rv, nil
}
