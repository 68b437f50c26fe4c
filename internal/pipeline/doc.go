// Package pipeline runs the local tile job: load, split, blur the selected
// tiles on parallel workers, compose and save.
package pipeline
