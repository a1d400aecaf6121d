package event

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Unmarshaler decodes one payload, e.g. json.Unmarshal or cbor.Unmarshal.
type Unmarshaler func(data []byte, v any) error

// Decode rebuilds the concrete event of kind from its encoded payload.
func Decode(kind Kind, payload []byte, unmarshal Unmarshaler) (Event, error) {
	switch kind {
	case KindItemDropRequested:
		return decodeAs[ItemDropRequested](payload, unmarshal)
	case KindItemAdded:
		return decodeAs[ItemAdded](payload, unmarshal)
	case KindBranchChildrenChanged:
		return decodeAs[BranchChildrenChanged](payload, unmarshal)
	case KindBranchReconcile:
		return decodeAs[BranchReconcile](payload, unmarshal)
	case KindOpenStateChanged:
		return decodeAs[OpenStateChanged](payload, unmarshal)
	case KindItemCreated:
		return decodeAs[ItemCreated](payload, unmarshal)
	case KindItemDeleted:
		return decodeAs[ItemDeleted](payload, unmarshal)
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

func decodeAs[E Event](payload []byte, unmarshal Unmarshaler) (Event, error) {
	var e E
	if err := unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", e.Kind(), err)
	}
	return e, nil
}

// frame is the binary envelope carried by the websocket change feed.
type frame struct {
	Kind    Kind            `cbor:"1,keyasint"`
	Seq     uint64          `cbor:"2,keyasint,omitempty"`
	Payload cbor.RawMessage `cbor:"3,keyasint"`
}

// EncodeFrame encodes e, tagged with its kind and a feed sequence number,
// as a CBOR frame.
func EncodeFrame(seq uint64, e Event) ([]byte, error) {
	payload, err := cbor.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	data, err := cbor.Marshal(frame{Kind: e.Kind(), Seq: seq, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("cbor encode frame: %w", err)
	}
	return data, nil
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(data []byte) (seq uint64, e Event, err error) {
	var f frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return 0, nil, fmt.Errorf("cbor unmarshal: %w", err)
	}
	e, err = Decode(f.Kind, f.Payload, cbor.Unmarshal)
	if err != nil {
		return 0, nil, err
	}
	return f.Seq, e, nil
}
