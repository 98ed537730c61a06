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
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/addrspace"
	"github.com/edgeo-scada/opcua-types/complextypes"
	"github.com/edgeo-scada/opcua-types/internal/config"
)

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// addressSpacePath returns the address space named on the command line or
// in the configuration.
func addressSpacePath(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if cfg.AddressSpace != "" {
		return cfg.AddressSpace, nil
	}
	return "", fmt.Errorf("no address space: pass a YAML file or set address_space")
}

// openTypeSystem loads a YAML address space and creates a type system
// over it.
func openTypeSystem(ctx context.Context, path string) (*complextypes.ComplexTypeSystem, *complextypes.SessionContext, error) {
	mem, err := addrspace.Load(os.DirFS(filepath.Dir(path)), filepath.Base(path), addrspace.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load address space: %w", err)
	}
	sc, err := complextypes.Connect(ctx, mem)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	return complextypes.New(sc, cfg.Options(logger)...), sc, nil
}

// writeOutput prints v in the configured format. text renders the text
// format.
func writeOutput(w io.Writer, v interface{}, text func(w io.Writer) error) error {
	switch cfg.Output {
	case config.OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case config.OutputText:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		if err := text(tw); err != nil {
			return err
		}
		return tw.Flush()
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
}

type typeView struct {
	ID                string          `json:"id" yaml:"id"`
	Name              string          `json:"name,omitempty" yaml:"name,omitempty"`
	Kind              string          `json:"kind" yaml:"kind"`
	StructureType     string          `json:"structureType,omitempty" yaml:"structureType,omitempty"`
	BaseDataType      string          `json:"baseDataType,omitempty" yaml:"baseDataType,omitempty"`
	DefaultEncodingID string          `json:"defaultEncodingId,omitempty" yaml:"defaultEncodingId,omitempty"`
	IsOptionSet       bool            `json:"isOptionSet,omitempty" yaml:"isOptionSet,omitempty"`
	Fields            []fieldView     `json:"fields,omitempty" yaml:"fields,omitempty"`
	Values            []enumValueView `json:"values,omitempty" yaml:"values,omitempty"`
}

type fieldView struct {
	Name       string `json:"name" yaml:"name"`
	DataType   string `json:"dataType" yaml:"dataType"`
	ValueRank  int32  `json:"valueRank,omitempty" yaml:"valueRank,omitempty"`
	IsOptional bool   `json:"isOptional,omitempty" yaml:"isOptional,omitempty"`
}

type enumValueView struct {
	Name  string `json:"name" yaml:"name"`
	Value int64  `json:"value" yaml:"value"`
}

func nodeIDString(id opcua.NodeID) string {
	if id.IsNull() {
		return ""
	}
	return opcua.FormatNodeID(id)
}

func newTypeView(id, name string, def opcua.DataTypeDefinition) typeView {
	v := typeView{ID: id, Name: name}
	switch d := def.(type) {
	case *opcua.StructureDefinition:
		v.Kind = "structure"
		v.StructureType = d.StructureType.String()
		v.BaseDataType = nodeIDString(d.BaseDataType)
		v.DefaultEncodingID = nodeIDString(d.DefaultEncodingID)
		for _, f := range d.Fields {
			fv := fieldView{Name: f.Name, DataType: nodeIDString(f.DataType), IsOptional: f.IsOptional}
			if f.ValueRank != opcua.ValueRankScalar {
				fv.ValueRank = f.ValueRank
			}
			v.Fields = append(v.Fields, fv)
		}
	case *opcua.EnumDefinition:
		v.Kind = "enumeration"
		v.IsOptionSet = d.IsOptionSet
		for _, f := range d.Fields {
			v.Values = append(v.Values, enumValueView{Name: f.Name, Value: f.Value})
		}
	}
	return v
}

func writeTypesText(w io.Writer, types []typeView) {
	for _, t := range types {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Kind, t.StructureType)
		for _, f := range t.Fields {
			opt := ""
			if f.IsOptional {
				opt = "optional"
			}
			fmt.Fprintf(w, "\t  %s\t%s\t%d\t%s\n", f.Name, f.DataType, f.ValueRank, opt)
		}
		for _, e := range t.Values {
			fmt.Fprintf(w, "\t  %s\t%d\t\t\n", e.Name, e.Value)
		}
	}
}

type namedValue struct {
	Name  string      `json:"name" yaml:"name"`
	Value interface{} `json:"value" yaml:"value"`
}

// plain turns a decoded value into data the encoders print readably.
func plain(v interface{}) interface{} {
	switch x := v.(type) {
	case *complextypes.Structure:
		if x == nil {
			return nil
		}
		fields := make([]namedValue, len(x.Fields))
		for i, f := range x.Fields {
			fields[i] = namedValue{Name: f.Name, Value: plain(f.Value)}
		}
		return fields
	case complextypes.Enum:
		return x.String()
	case *complextypes.Matrix:
		if x == nil {
			return nil
		}
		return map[string]interface{}{"dimensions": x.Dimensions, "values": plain(x.Values)}
	case []interface{}:
		if x == nil {
			return nil
		}
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	case opcua.Variant:
		return plain(x.Value)
	case opcua.ExtensionObject:
		if x.Value != nil {
			return plain(x.Value)
		}
		return map[string]interface{}{"typeId": x.TypeID.String(), "body": hex.EncodeToString(x.Body)}
	case opcua.NodeID:
		return nodeIDString(x)
	case opcua.ExpandedNodeID:
		return x.String()
	case opcua.LocalizedText:
		return x.Text
	case opcua.QualifiedName:
		return x.Name
	case []byte:
		return hex.EncodeToString(x)
	}
	return v
}
