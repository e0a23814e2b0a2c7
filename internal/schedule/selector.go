package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// A selector names one content unit as "<volume>-<lesson>-<day>". Days run
// 1..7; day 0 is the combined whole-lesson variant, which can be seeded
// explicitly but is never produced by advancing.

// ParseSelector splits a selector into its components.
func ParseSelector(selector string) (volume, lesson, day int, err error) {
	parts := strings.Split(strings.TrimSpace(selector), "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: invalid selector %q", ErrValidation, selector)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, convErr := strconv.Atoi(p)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("%w: invalid selector %q", ErrValidation, selector)
		}
		nums[i] = n
	}
	volume, lesson, day = nums[0], nums[1], nums[2]
	if volume < 1 || lesson < 1 {
		return 0, 0, 0, fmt.Errorf("%w: selector volume and lesson must be positive: %q", ErrValidation, selector)
	}
	if day < 0 || day > 7 {
		return 0, 0, 0, fmt.Errorf("%w: selector day must be 0..7: %q", ErrValidation, selector)
	}
	return volume, lesson, day, nil
}

// FormatSelector renders components back to the canonical form.
func FormatSelector(volume, lesson, day int) (string, error) {
	if volume < 1 || lesson < 1 {
		return "", fmt.Errorf("%w: volume and lesson must be positive", ErrValidation)
	}
	if day < 0 || day > 7 {
		return "", fmt.Errorf("%w: day must be 0..7", ErrValidation)
	}
	return fmt.Sprintf("%d-%d-%d", volume, lesson, day), nil
}

// NextSelector advances a selector by one day, rolling day 7 over to day 1
// of the next lesson. The whole-lesson variant (day 0) has no successor.
func NextSelector(selector string) (string, error) {
	volume, lesson, day, err := ParseSelector(selector)
	if err != nil {
		return "", err
	}
	if day == 0 {
		return "", fmt.Errorf("%w: whole-lesson selector %q cannot be advanced", ErrValidation, selector)
	}
	day++
	if day > 7 {
		day = 1
		lesson++
	}
	return FormatSelector(volume, lesson, day)
}

// PrevSelector steps a selector back one day, clamping at lesson 1.
func PrevSelector(selector string) (string, error) {
	volume, lesson, day, err := ParseSelector(selector)
	if err != nil {
		return "", err
	}
	if day == 0 {
		return "", fmt.Errorf("%w: whole-lesson selector %q has no predecessor", ErrValidation, selector)
	}
	day--
	if day < 1 {
		day = 7
		if lesson > 1 {
			lesson--
		}
	}
	return FormatSelector(volume, lesson, day)
}
