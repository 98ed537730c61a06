// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	opcua "github.com/edgeo-scada/opcua-types"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [address-space.yaml] <type-id> <hex>",
	Short: "Decode a binary encoded value of a custom type",
	Long: `Load the custom types of an address space and decode the body of a
binary encoded value. The type id may be the data type or its binary
encoding.

Examples:
  edgeo-opcua-types decode plant.yaml "nsu=urn:plant;i=3001" "0a000000 01"`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runDecode,
}

type decodeView struct {
	Type  string      `json:"type" yaml:"type"`
	Name  string      `json:"name" yaml:"name"`
	Value interface{} `json:"value" yaml:"value"`
}

func runDecode(cmd *cobra.Command, args []string) error {
	var spaceArgs []string
	if len(args) == 3 {
		spaceArgs, args = args[:1], args[1:]
	}
	path, err := addressSpacePath(spaceArgs)
	if err != nil {
		return err
	}
	id, err := opcua.ParseExpandedNodeID(args[0])
	if err != nil {
		return fmt.Errorf("invalid type %q: %w", args[0], err)
	}
	body, err := hex.DecodeString(strings.Join(strings.Fields(args[1]), ""))
	if err != nil {
		return fmt.Errorf("invalid hex body: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()
	ts, sc, err := openTypeSystem(ctx, path)
	if err != nil {
		return err
	}
	if _, err := ts.Load(ctx, false, cfg.ThrowOnError); err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	t := sc.Factory().GetSystemType(sc.NamespaceTable().Normalize(id))
	if t == nil {
		return fmt.Errorf("type %s is not loaded", args[0])
	}
	d := opcua.NewDecoder(body)
	v, err := t.DecodeBinary(d)
	if err != nil {
		return fmt.Errorf("decode %s: %w", t.Name().Name, err)
	}
	if n := d.Remaining(); n > 0 {
		logger.Warn("trailing bytes after value", slog.Int("bytes", n))
	}

	view := decodeView{Type: t.TypeID().String(), Name: t.Name().Name, Value: plain(v)}
	return writeOutput(cmd.OutOrStdout(), view, func(w io.Writer) error {
		fmt.Fprintf(w, "type:\t%s\t%s\n", view.Type, view.Name)
		writeValueText(w, "", view.Value)
		return nil
	})
}

func writeValueText(w io.Writer, indent string, v interface{}) {
	switch x := v.(type) {
	case []namedValue:
		for _, f := range x {
			switch f.Value.(type) {
			case []namedValue, []interface{}:
				fmt.Fprintf(w, "%s%s:\t\n", indent, f.Name)
				writeValueText(w, indent+"  ", f.Value)
			default:
				fmt.Fprintf(w, "%s%s:\t%v\n", indent, f.Name, f.Value)
			}
		}
	case []interface{}:
		for i, item := range x {
			fmt.Fprintf(w, "%s[%d]\t\n", indent, i)
			writeValueText(w, indent+"  ", item)
		}
	default:
		fmt.Fprintf(w, "%svalue:\t%v\n", indent, x)
	}
}
