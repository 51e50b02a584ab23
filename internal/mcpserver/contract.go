package mcpserver

// ChartFormatContract describes the chart document format that LLM
// consumers should follow when creating or importing charts.
const ChartFormatContract = `# Keyshift Chart Format

Every chart stored in the library is a YAML document (JSON is accepted too).

## Structure

` + "```" + `yaml
title: Human-readable title      # OPTIONAL - defaults to the file name
artist: Composer                 # OPTIONAL
version: 7K Hard                 # OPTIONAL - difficulty name
keys: 7                          # REQUIRED - column count, 1..18
bpm: 180                         # OPTIONAL - fallback tempo
difficulty: {key_count: 7, hp_drain: 8, overall: 7.5}
timing_points:                   # OPTIONAL - first entry drives the tempo
  - {time: 0, beat_length: 333.333}
notes:
  - {time: 0, column: 0}                 # tap
  - {time: 333, end: 666, column: 3}     # hold (end > time)
` + "```" + `

## Rules

1. **` + "`" + `keys` + "`" + ` is required** and every note column must lie in ` + "`" + `0..keys-1` + "`" + `.
2. **Times** are milliseconds from the start of the song and are never negative.
3. **Holds** have ` + "`" + `end` + "`" + ` greater than ` + "`" + `time` + "`" + `; taps omit ` + "`" + `end` + "`" + `.
4. **Beat length** is the duration of one beat in milliseconds (60000 / BPM).
5. **File paths** end with ` + "`" + `.yaml` + "`" + `, ` + "`" + `.yml` + "`" + ` or ` + "`" + `.json` + "`" + ` and use forward slashes.
6. **Encoding** is UTF-8. File and directory names should be Latin characters.

## Conversions

Use the ` + "`" + `convert_chart` + "`" + ` tool with one of these kinds:

- ` + "`" + `keys` + "`" + `: change the column count. Options: ` + "`" + `target_keys` + "`" + `, ` + "`" + `max_keys` + "`" + `, ` + "`" + `min_keys` + "`" + `, ` + "`" + `beat_speed_index` + "`" + `, ` + "`" + `seed` + "`" + `.
- ` + "`" + `doubleplay` + "`" + `: mirror the chart onto two sides. Options: ` + "`" + `modify_keys` + "`" + `, ` + "`" + `left_mirror` + "`" + `, ` + "`" + `right_mirror` + "`" + `, ` + "`" + `left_density` + "`" + `, ` + "`" + `seed` + "`" + `.
- ` + "`" + `longnote` + "`" + `: turn taps into holds. Options: ` + "`" + `length_threshold` + "`" + `, ` + "`" + `long_percentage` + "`" + `, ` + "`" + `alignment` + "`" + `, ` + "`" + `seed` + "`" + `.

The result is written next to the source (` + "`" + `song.yaml` + "`" + ` becomes
` + "`" + `song.keyshift-7k.yaml` + "`" + `) and the seed used is recorded, so passing the
same seed and options again reproduces the chart exactly.

## Example

` + "```" + `yaml
title: Weekly Anthem
artist: Tester
version: 4K Normal
keys: 4
bpm: 120
timing_points: [{time: 0, beat_length: 500}]
notes:
  - {time: 0, column: 0}
  - {time: 500, column: 1}
  - {time: 1000, end: 1500, column: 2}
  - {time: 1500, column: 3}
` + "```" + `
`
