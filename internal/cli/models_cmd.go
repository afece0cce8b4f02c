// Copyright (c) 2025 Parley Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// HandleModels lists the models the API offers.
func HandleModels(rawArgs []string) error {
	args := NewArgParser(rawArgs)
	cfg := LoadConfig()

	client, err := BuildClient(cfg, args)
	if err != nil {
		return err
	}

	models, err := client.ListModels(context.Background())
	if err != nil {
		return err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	if args.BoolFlag("json") {
		return json.NewEncoder(os.Stdout).Encode(models)
	}
	for _, m := range models {
		marker := "  "
		if m.ID == cfg.API.Model {
			marker = "* "
		}
		fmt.Printf("%s%s\n", marker, m.ID)
	}
	return nil
}
