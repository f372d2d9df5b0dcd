package service

import (
	"fmt"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func welcomeEmailTemplate(name, appURL, appName string) (string, string) {
	subject := fmt.Sprintf("Welcome to %s", appName)
	body := fmt.Sprintf(`Hi %s,

Your account is ready. Your first milestone is 7 days, and it started today.

Check in once a day: %s

Best,
The %s Team`, name, appURL, appName)

	return subject, body
}

func milestoneEmailTemplate(name string, days int, medal string, completion float64, appName string) (string, string) {
	subject := fmt.Sprintf("You reached %d days!", days)
	if medal != "" {
		medal = cases.Title(language.English).String(medal) + " medal. "
	}
	body := fmt.Sprintf(`Hi %s,

You completed your %d-day milestone with %s%% of days checked in. %sThe next milestone has already begun.

Best,
The %s Team`, name, days, strconv.FormatFloat(completion, 'f', -1, 64), medal, appName)

	return subject, body
}

func accountDeletedEmailTemplate(name, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s account has been deleted", appName)
	body := fmt.Sprintf(`Hi %s,

Your account has been permanently deleted from %s, together with your check-ins, milestones and coping history.

If you didn't request this deletion, please contact our support team immediately, though we won't be able to recover your account.

Best,
The %s Team`, name, appName, appName)

	return subject, body
}
