package grpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName 是 JSON codec 在 gRPC content-subtype 中的名稱 (application/grpc+json)
const CodecName = "json"

// JSONCodec 以 JSON 編碼 gRPC 訊息，讓服務不需要產生 protobuf 型別也能直接傳遞 Go struct
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (JSONCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
