// prototool converts websocket events between their JSON form and the binary protobuf frames the
// server writes when websocket.codec is "protobuf".
//
//	echo '{"receiver_id":2,"text":"hi"}' | prototool -mode encode -type client -out hex
//	echo 0a0b6e65775f6d657373616765... | prototool -mode decode -type server -in hex
package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go-direct-chat/internal/codec"
)

func main() {
	mode := flag.String("mode", "encode", "Mode: 'encode' or 'decode'")
	messageType := flag.String("type", "client", "Message type: 'client' (send_message) or 'server' (event envelope)")
	inputFormat := flag.String("in", "hex", "Input format for decode: 'hex' or 'base64'")
	outputFormat := flag.String("out", "hex", "Output format for encode: 'hex' or 'base64'")
	flag.Parse()

	inputData, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
		os.Exit(1)
	}
	inputStr := strings.TrimSpace(string(inputData))

	var out string
	switch *mode {
	case "encode":
		out, err = encode(inputStr, *messageType, *outputFormat)
	case "decode":
		out, err = decode(inputStr, *messageType, *inputFormat)
	default:
		err = fmt.Errorf("invalid mode: %s. Use 'encode' or 'decode'", *mode)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(out)
}

// Encodes JSON input to Protobuf binary (Hex or Base64)
func encode(jsonInput, msgType, outputFormat string) (string, error) {
	var binaryData []byte
	var err error

	switch msgType {
	case "client":
		msg, decodeErr := codec.JSONCodec{}.DecodeInbound([]byte(jsonInput))
		if decodeErr != nil {
			return "", fmt.Errorf("error parsing send_message JSON: %w", decodeErr)
		}
		binaryData, err = codec.ProtoCodec{}.EncodeInbound(msg)
	case "server":
		env, decodeErr := codec.JSONCodec{}.Decode([]byte(jsonInput))
		if decodeErr != nil {
			return "", fmt.Errorf("error parsing event JSON: %w", decodeErr)
		}
		binaryData, err = codec.ProtoCodec{}.Encode(env)
	default:
		return "", fmt.Errorf("invalid message type for encoding: %s. Use 'client' or 'server'", msgType)
	}
	if err != nil {
		return "", fmt.Errorf("error marshaling to Protobuf: %w", err)
	}

	switch outputFormat {
	case "hex":
		return hex.EncodeToString(binaryData), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(binaryData), nil
	default:
		return "", fmt.Errorf("invalid output format: %s. Use 'hex' or 'base64'", outputFormat)
	}
}

// Decodes Protobuf binary (Hex or Base64) input to JSON
func decode(input, msgType, inputFormat string) (string, error) {
	var binaryData []byte
	var err error

	switch inputFormat {
	case "hex":
		binaryData, err = hex.DecodeString(input)
	case "base64":
		binaryData, err = base64.StdEncoding.DecodeString(input)
	default:
		return "", fmt.Errorf("invalid input format: %s. Use 'hex' or 'base64'", inputFormat)
	}
	if err != nil {
		return "", fmt.Errorf("error decoding input string (%s): %w", inputFormat, err)
	}

	var msg any
	switch msgType {
	case "client":
		msg, err = codec.ProtoCodec{}.DecodeInbound(binaryData)
	case "server":
		msg, err = codec.ProtoCodec{}.Decode(binaryData)
	default:
		return "", fmt.Errorf("invalid message type for decoding: %s. Use 'client' or 'server'", msgType)
	}
	if err != nil {
		return "", fmt.Errorf("error unmarshaling Protobuf: %w", err)
	}

	jsonOutput, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error marshaling to JSON: %w", err)
	}
	return string(jsonOutput), nil
}
