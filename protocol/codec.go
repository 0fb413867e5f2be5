package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/c0deZ3R0/pixel-chunk/errors"
)

const opDecode = errors.Op("protocol.Decode")

// EncodeRequest marshals r with its "type" discriminant.
func EncodeRequest(r Request) ([]byte, error) {
	switch v := r.(type) {
	case Commit:
		return json.Marshal(struct {
			Type RequestType `json:"type"`
			Commit
		}{TypeCommit, v})
	case RebaseCommit:
		return json.Marshal(struct {
			Type RequestType `json:"type"`
			RebaseCommit
		}{TypeRebaseCommit, v})
	}
	return nil, errors.E(errors.Op("protocol.EncodeRequest"), errors.KindInvalid, fmt.Sprintf("unknown request %T", r))
}

// DecodeRequest unmarshals a client message, dispatching on its "type".
func DecodeRequest(data []byte) (Request, error) {
	var envelope struct {
		Type RequestType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.E(opDecode, errors.KindInvalid, err)
	}

	switch envelope.Type {
	case TypeCommit:
		var c Commit
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, errors.E(opDecode, errors.KindInvalid, err)
		}
		return c, nil
	case TypeRebaseCommit:
		var r RebaseCommit
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, errors.E(opDecode, errors.KindInvalid, err)
		}
		return r, nil
	}
	return nil, errors.E(opDecode, errors.KindInvalid, fmt.Sprintf("unknown request type %q", envelope.Type))
}

// EncodeResult marshals r with its "kind" discriminant.
func EncodeResult(r Result) ([]byte, error) {
	switch v := r.(type) {
	case Ready:
		return json.Marshal(struct {
			Kind ResultKind `json:"kind"`
			Ready
		}{KindReady, v})
	case Success:
		return json.Marshal(struct {
			Kind ResultKind `json:"kind"`
			Success
		}{KindSuccess, v})
	case Conflict:
		if v.ConflictedChunks == nil {
			v.ConflictedChunks = []int{}
		}
		return json.Marshal(struct {
			Kind ResultKind `json:"kind"`
			Conflict
		}{KindConflict, v})
	case Failure:
		return json.Marshal(struct {
			Kind ResultKind `json:"kind"`
			Failure
		}{KindError, v})
	}
	return nil, errors.E(errors.Op("protocol.EncodeResult"), errors.KindInvalid, fmt.Sprintf("unknown result %T", r))
}

// DecodeResult unmarshals a server message, dispatching on its "kind".
func DecodeResult(data []byte) (Result, error) {
	var envelope struct {
		Kind ResultKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.E(opDecode, errors.KindInvalid, err)
	}

	var (
		result Result
		err    error
	)
	switch envelope.Kind {
	case KindReady:
		var v Ready
		err = json.Unmarshal(data, &v)
		result = v
	case KindSuccess:
		var v Success
		err = json.Unmarshal(data, &v)
		result = v
	case KindConflict:
		var v Conflict
		err = json.Unmarshal(data, &v)
		result = v
	case KindError:
		var v Failure
		err = json.Unmarshal(data, &v)
		result = v
	default:
		return nil, errors.E(opDecode, errors.KindInvalid, fmt.Sprintf("unknown result kind %q", envelope.Kind))
	}
	if err != nil {
		return nil, errors.E(opDecode, errors.KindInvalid, err)
	}
	return result, nil
}
