package buildsys

import (
	"encoding/gob"
	"os"

	"github.com/rotisserie/eris"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
}

type cacheHeader struct {
	TaskFile string
	Options  map[string]string
}

// WriteCache stores a parsed task list together with the task file and options it was
// generated from.
func WriteCache(file, taskFile string, options map[string]string, list TaskList) error {
	handle, err := os.Create(file)
	if err != nil {
		return eris.Wrapf(err, "Failed to create cache file %s", file)
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(cacheHeader{TaskFile: taskFile, Options: options})
	if err != nil {
		return eris.Wrap(err, "Failed to encode cache header")
	}

	if err = encoder.Encode(list); err != nil {
		return eris.Wrap(err, "Failed to encode task list")
	}

	return handle.Close()
}

// ReadCache loads a cache file written by WriteCache
func ReadCache(file string) (string, map[string]string, TaskList, error) {
	handle, err := os.Open(file)
	if err != nil {
		return "", nil, nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var header cacheHeader
	if err = decoder.Decode(&header); err != nil {
		return "", nil, nil, eris.Wrapf(err, "Failed to decode cache header in %s", file)
	}

	var result TaskList
	if err = decoder.Decode(&result); err != nil {
		return header.TaskFile, header.Options, nil, eris.Wrapf(err, "Failed to decode task list in %s", file)
	}

	return header.TaskFile, header.Options, result, nil
}
