package requests

// PastePlanDTO is the JSON/YAML representation of [PastePlan]
type PastePlanDTO struct {
	ID           *string     `json:"id,omitempty" yaml:"id,omitempty"` // Optional, generated when missing
	Move         bool        `json:"move,omitempty" yaml:"move,omitempty"`
	Policy       string      `json:"policy,omitempty" yaml:"policy,omitempty"` // skip (Default), overwrite or rename
	Sources      []HandleDTO `json:"sources" yaml:"sources"`
	Destinations []HandleDTO `json:"destinations" yaml:"destinations"`
}

// HandleDTO is the JSON/YAML representation of [zexplorer.ResourceHandle].
//
// Connection defaults to the plan's connection and Kind to "local":
//
//	{"key": "/src/a.txt"}
//	{"connection": "zosmf", "key": "USER.PDS", "kind": "member", "dir": true}
type HandleDTO struct {
	Connection string `json:"connection,omitempty" yaml:"connection,omitempty"`
	Key        string `json:"key" yaml:"key"`
	Kind       string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Dir        *bool  `json:"dir,omitempty" yaml:"dir,omitempty"` // Destinations default to true
}
