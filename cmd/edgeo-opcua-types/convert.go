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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/complextypes"
	"github.com/edgeo-scada/opcua-types/schema"
)

var convertCmd = &cobra.Command{
	Use:   "convert <dictionary.bsd>",
	Short: "Convert an OPC Binary dictionary to data type definitions",
	Long: `Convert the structures and enumerations of an OPC Binary type dictionary
to DataTypeDefinitions. Types of the dictionary get the string ids
"nsu=<target namespace>;s=<name>".

Examples:
  edgeo-opcua-types convert Plant.bsd
  edgeo-opcua-types convert Plant.bsd -o text`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

type convertView struct {
	TargetNamespace string     `json:"targetNamespace" yaml:"targetNamespace"`
	Findings        []string   `json:"findings,omitempty" yaml:"findings,omitempty"`
	Types           []typeView `json:"types" yaml:"types"`
	Unsupported     []string   `json:"unsupported,omitempty" yaml:"unsupported,omitempty"`
}

func runConvert(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	dict, err := schema.NewBinarySchemaValidator(nil).Validate(data)
	var findings *schema.ValidationError
	switch {
	case errors.As(err, &findings):
		if cfg.StrictDictionaries {
			return err
		}
	case err != nil:
		return err
	}

	view := convertView{TargetNamespace: dict.TargetNamespace}
	if findings != nil {
		for _, f := range findings.Findings {
			logger.Warn("dictionary validation", slog.String("finding", f.String()))
			view.Findings = append(view.Findings, f.String())
		}
	}

	namespaces := opcua.NewNamespaceTable(opcua.NamespaceURI, dict.TargetNamespace)
	typeMap := make(map[schema.QName]opcua.NodeID)
	for _, e := range dict.EnumeratedTypes {
		typeMap[e.QualifiedName()] = opcua.NewStringNodeID(1, e.Name)
	}
	for _, st := range dict.StructuredTypes {
		typeMap[st.QualifiedName()] = opcua.NewStringNodeID(1, st.Name)
	}
	idOf := func(name string) string {
		return namespaces.ToExpanded(opcua.NewStringNodeID(1, name)).String()
	}

	for _, e := range dict.EnumeratedTypes {
		view.Types = append(view.Types, newTypeView(idOf(e.Name), e.Name, complextypes.EnumeratedTypeToEnumDefinition(e)))
	}
	for _, st := range dict.StructuredTypes {
		def, err := complextypes.ToStructureDefinition(st, opcua.ExpandedNodeID{}, typeMap, namespaces, opcua.NewStringNodeID(1, st.Name))
		if err != nil {
			if !errors.Is(err, complextypes.ErrDataTypeNotSupported) {
				return err
			}
			logger.Warn("structure not converted", slog.String("type", st.Name), slog.String("error", err.Error()))
			view.Unsupported = append(view.Unsupported, st.Name)
			continue
		}
		view.Types = append(view.Types, newTypeView(idOf(st.Name), st.Name, def))
	}

	return writeOutput(cmd.OutOrStdout(), view, func(w io.Writer) error {
		fmt.Fprintf(w, "target namespace:\t%s\n", view.TargetNamespace)
		writeTypesText(w, view.Types)
		for _, name := range view.Unsupported {
			fmt.Fprintf(w, "unsupported:\t%s\n", name)
		}
		return nil
	})
}
