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
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	opcua "github.com/edgeo-scada/opcua-types"
	"github.com/edgeo-scada/opcua-types/complextypes"
)

var loadCmd = &cobra.Command{
	Use:   "load [address-space.yaml]",
	Short: "Load the custom data types of an address space",
	Long: `Run the complex type system over a YAML address space and print the
data type definitions it registered.

Examples:
  edgeo-opcua-types load plant.yaml
  edgeo-opcua-types load plant.yaml --only-enums
  edgeo-opcua-types load plant.yaml --type "nsu=urn:plant;i=3001" --metrics`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

var (
	loadTypeID  string
	loadMetrics bool
)

func init() {
	loadCmd.Flags().Bool("only-enums", false, "Load enumeration types only")
	loadCmd.Flags().Bool("throw-on-error", false, "Fail on the first load error")
	loadCmd.Flags().Bool("disable-definition", false, "Ignore the DataTypeDefinition attribute")
	loadCmd.Flags().Bool("disable-dictionary", false, "Ignore the data type dictionaries")
	loadCmd.Flags().Bool("strict", false, "Reject dictionaries with validation findings")
	loadCmd.Flags().Int("max-loop-count", complextypes.DefaultMaxLoopCount, "Maximum structure retry passes")
	loadCmd.Flags().StringVar(&loadTypeID, "type", "", "Print only this type and its dependencies")
	loadCmd.Flags().BoolVar(&loadMetrics, "metrics", false, "Print the load metrics")

	viper.BindPFlag("only_enums", loadCmd.Flags().Lookup("only-enums"))
	viper.BindPFlag("throw_on_error", loadCmd.Flags().Lookup("throw-on-error"))
	viper.BindPFlag("disable_data_type_definition", loadCmd.Flags().Lookup("disable-definition"))
	viper.BindPFlag("disable_data_type_dictionary", loadCmd.Flags().Lookup("disable-dictionary"))
	viper.BindPFlag("strict_dictionaries", loadCmd.Flags().Lookup("strict"))
	viper.BindPFlag("max_loop_count", loadCmd.Flags().Lookup("max-loop-count"))
}

type loadView struct {
	Complete       bool                   `json:"complete" yaml:"complete"`
	EnumTypes      int                    `json:"enumTypes" yaml:"enumTypes"`
	StructureTypes int                    `json:"structureTypes" yaml:"structureTypes"`
	Passes         int                    `json:"passes" yaml:"passes"`
	Unresolved     []string               `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	Unsupported    []string               `json:"unsupported,omitempty" yaml:"unsupported,omitempty"`
	Types          []typeView             `json:"types,omitempty" yaml:"types,omitempty"`
	Metrics        map[string]interface{} `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

func runLoad(cmd *cobra.Command, args []string) error {
	path, err := addressSpacePath(args)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	ts, sc, err := openTypeSystem(ctx, path)
	if err != nil {
		return err
	}
	complete, err := ts.Load(ctx, cfg.OnlyEnums, cfg.ThrowOnError)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	report := ts.LastReport()
	if report == nil {
		report = &complextypes.LoadReport{}
	}
	view := loadView{
		Complete:       complete,
		EnumTypes:      report.EnumTypes,
		StructureTypes: report.StructureTypes,
		Passes:         report.Passes,
		Unresolved:     idStrings(report.Unresolved),
		Unsupported:    idStrings(report.Unsupported),
	}

	if loadTypeID != "" {
		id, err := opcua.ParseExpandedNodeID(loadTypeID)
		if err != nil {
			return fmt.Errorf("invalid type %q: %w", loadTypeID, err)
		}
		entries := ts.DataTypeDefinitions(id)
		if len(entries) == 0 {
			return fmt.Errorf("type %s is not loaded", loadTypeID)
		}
		for _, e := range entries {
			view.Types = append(view.Types, newTypeView(e.ID.String(), typeName(sc, e.ID), e.Definition))
		}
	} else {
		for _, id := range ts.KnownTypes() {
			def, _ := ts.Definition(id)
			view.Types = append(view.Types, newTypeView(id.String(), typeName(sc, id), def))
		}
	}
	if loadMetrics {
		view.Metrics = ts.Metrics().Collect()
		for k, v := range sc.Cache().Metrics().Collect() {
			view.Metrics["node_cache_"+k] = v
		}
	}

	if err := writeOutput(cmd.OutOrStdout(), view, func(w io.Writer) error {
		fmt.Fprintf(w, "complete:\t%t\n", view.Complete)
		fmt.Fprintf(w, "enumerations:\t%d\n", view.EnumTypes)
		fmt.Fprintf(w, "structures:\t%d\n", view.StructureTypes)
		for _, id := range view.Unresolved {
			fmt.Fprintf(w, "unresolved:\t%s\n", id)
		}
		for _, id := range view.Unsupported {
			fmt.Fprintf(w, "unsupported:\t%s\n", id)
		}
		writeTypesText(w, view.Types)
		keys := make([]string, 0, len(view.Metrics))
		for k := range view.Metrics {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s:\t%v\n", k, view.Metrics[k])
		}
		return nil
	}); err != nil {
		return err
	}
	if !complete && cfg.ThrowOnError {
		return fmt.Errorf("%d unresolved and %d unsupported types", len(report.Unresolved), len(report.Unsupported))
	}
	return nil
}

func idStrings(ids []opcua.ExpandedNodeID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func typeName(sc *complextypes.SessionContext, id opcua.ExpandedNodeID) string {
	if t := sc.Factory().GetSystemType(id); t != nil {
		return t.Name().Name
	}
	return ""
}
