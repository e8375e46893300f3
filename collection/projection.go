//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package collection

import (
	"context"

	json "github.com/couchbase/go_json"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/options"
	"github.com/couchbase/kvsdk/results"
	"github.com/couchbase/kvsdk/subdoc"
	"github.com/couchbase/kvsdk/transcoder"
)

// GetProjected serves a get that asks for the expiry or for a subset of
// the document. Up to MaxSubdocSpecs paths are fetched one lookup spec
// each; beyond that the whole body is fetched and cut down here. The
// projected document is always JSON.
func (c *Collection) GetProjected(ctx context.Context, id string, opts *options.Get) (*results.GetResult, error) {
	if opts == nil {
		opts = options.DefaultGet()
	}
	paths := opts.Projections()
	if len(paths) == 0 {
		// expiry only, every backend reads it alongside the body
		req := opts.Request(c.loc, id)
		var resp *backend.GetResponse
		err := c.run(ctx, "get", id, req.Timeout, func(ctx context.Context) (err error) {
			resp, err = c.backend.Get(ctx, req)
			return
		})
		if err != nil {
			return nil, err
		}
		return results.NewGetResult(resp, opts.TranscoderOrDefault()), nil
	}

	parsed := make([]subdoc.Path, len(paths))
	for i, p := range paths {
		pp, err := subdoc.ParsePath(p)
		if err != nil {
			return nil, err
		}
		if len(pp) == 0 {
			return nil, errors.NewInvalidArgument("projection paths must not be empty")
		}
		parsed[i] = pp
	}

	budget := options.MaxSubdocSpecs
	var specs []*subdoc.LookupInSpec
	if opts.WithExpiry {
		specs = append(specs, subdoc.LookupMacro(subdoc.MacroExpiryTime))
		budget--
	}
	perPath := len(paths) <= budget
	if perPath {
		for _, p := range paths {
			specs = append(specs, subdoc.LookupGet(p))
		}
	} else {
		specs = append(specs, subdoc.LookupGet(""))
	}

	lopts := &options.LookupIn{Common: opts.Common}
	req, err := lopts.Request(c.loc, id, specs)
	if err != nil {
		return nil, err
	}
	var resp *backend.LookupInResponse
	err = c.run(ctx, "get_projected", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.LookupIn(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}

	rv := &backend.GetResponse{
		Cas:   resp.Cas,
		Flags: transcoder.EncodeFlags(transcoder.Flags{Format: transcoder.FormatJSON}),
	}
	fields := resp.Fields
	if opts.WithExpiry {
		exp, err := expiryField(fields[0])
		if err != nil {
			return nil, err
		}
		rv.Expiry = &exp
		fields = fields[1:]
	}

	var doc interface{}
	if perPath {
		doc, err = projectFields(parsed, fields)
	} else {
		doc, err = projectBody(id, parsed, fields[0])
	}
	if err != nil {
		return nil, err
	}
	if rv.Value, err = json.Marshal(doc); err != nil {
		return nil, errors.NewEncodingFailure("projected document", err)
	}
	return results.NewGetResult(rv, opts.TranscoderOrDefault()), nil
}

func expiryField(f backend.SubdocField) (uint32, error) {
	if f.Err != nil {
		return 0, f.Err
	}
	var exp uint32
	if err := json.Unmarshal(f.Value, &exp); err != nil {
		return 0, errors.NewDecodingFailure("document expiry", err)
	}
	return exp, nil
}

// projectFields rebuilds a document from one lookup result per path.
// Paths missing from the document are left out.
func projectFields(paths []subdoc.Path, fields []backend.SubdocField) (interface{}, error) {
	var root interface{} = make(map[string]interface{})
	for i, p := range paths {
		f := fields[i]
		if f.Err != nil {
			if errors.Is(f.Err, errors.ErrPathNotFound) || errors.Is(f.Err, errors.ErrPathMismatch) {
				continue
			}
			return nil, f.Err
		}
		v, err := subdoc.DecodeValue(f.Value)
		if err != nil {
			return nil, errors.NewDecodingFailure(p.String(), err)
		}
		root = place(root, p, v)
	}
	return root, nil
}

// projectBody cuts the projected paths out of the whole body.
func projectBody(id string, paths []subdoc.Path, f backend.SubdocField) (interface{}, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	body, err := subdoc.DecodeValue(f.Value)
	if err != nil {
		return nil, errors.NewKVError(errors.E_DOCUMENT_NOT_JSON, id)
	}
	var root interface{} = make(map[string]interface{})
	for _, p := range paths {
		v, err := p.Get(body)
		if err != nil {
			if errors.Is(err, errors.ErrPathNotFound) || errors.Is(err, errors.ErrPathMismatch) {
				continue
			}
			return nil, err
		}
		root = place(root, p, v)
	}
	return root, nil
}

// place stores v at p under node, creating objects for missing keys. An
// array index in a projected path becomes an array holding only the
// projected element.
func place(node interface{}, p subdoc.Path, v interface{}) interface{} {
	if len(p) == 0 {
		return v
	}
	s := p[0]
	if s.IsIndex {
		arr, _ := node.([]interface{})
		return append(arr, place(nil, p[1:], v))
	}
	obj, ok := node.(map[string]interface{})
	if !ok {
		obj = make(map[string]interface{})
	}
	obj[s.Key] = place(obj[s.Key], p[1:], v)
	return obj
}
